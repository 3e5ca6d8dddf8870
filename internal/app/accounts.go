package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmasaiti/zimproperty/internal/auth"
	"github.com/tmasaiti/zimproperty/internal/domain"
	"github.com/tmasaiti/zimproperty/internal/store"
)

const (
	minPasswordLength = 6
	minPhoneLength    = 9
	loginWindow       = time.Minute
)

// SessionToken is a signed session credential handed to the client.
type SessionToken struct {
	Token     string
	ExpiresAt time.Time
}

func validateRegistration(req *domain.RegisterRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Phone = strings.TrimSpace(req.Phone)
	req.AgencyName = strings.TrimSpace(req.AgencyName)
	req.LicenseDocument = strings.TrimSpace(req.LicenseDocument)

	var errs fieldErrors
	if req.Username == "" {
		errs.add("username", "Username is required")
	}
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		errs.add("email", "Invalid email address")
	}
	if len(req.Password) < minPasswordLength {
		errs.add("password", fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if req.Password != req.ConfirmPassword {
		errs.add("confirmPassword", "Passwords don't match")
	}
	if req.FirstName == "" {
		errs.add("firstName", "First name is required")
	}
	if req.LastName == "" {
		errs.add("lastName", "Last name is required")
	}
	if len(req.Phone) < minPhoneLength {
		errs.add("phone", fmt.Sprintf("Phone number must be at least %d characters", minPhoneLength))
	}
	switch req.Role {
	case domain.RoleSeller:
	case domain.RoleAgent:
		if req.AgencyName == "" {
			errs.add("agencyName", "Agency name is required for agents")
		}
		if req.LicenseDocument == "" {
			errs.add("licenseDocument", "License document is required for agents")
		}
	default:
		errs.add("role", "Role must be seller or agent")
	}
	return errs.err()
}

// Register creates a seller or agent account. Agents get a pending profile and
// every admin is notified in the same transaction.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	if err := validateRegistration(&req); err != nil {
		return nil, err
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	params := store.CreateUserParams{
		User: domain.User{
			Username:          req.Username,
			Password:          hashed,
			Email:             req.Email,
			FirstName:         req.FirstName,
			LastName:          req.LastName,
			Phone:             req.Phone,
			Role:              req.Role,
			WhatsappPreferred: req.WhatsappPreferred,
		},
		Exchange: s.exchange,
	}
	if req.Role == domain.RoleAgent {
		params.AgentProfile = &domain.AgentProfile{
			AgencyName:         req.AgencyName,
			LicenseDocument:    req.LicenseDocument,
			VerificationStatus: domain.VerificationPending,
		}
		notification := agentRegistrationNotification(params.User)
		params.AdminNotification = &notification
	}

	user, err := s.repo.CreateUser(ctx, params)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=accounts msg=\"user registered\" user_id=%d role=%s", user.ID, user.Role)
	return user, nil
}

// Login checks credentials and opens a new session.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest, clientKey string) (*domain.User, *SessionToken, error) {
	username := strings.TrimSpace(req.Username)
	if err := s.throttleLogin(ctx, clientKey, username); err != nil {
		return nil, nil, err
	}

	user, err := s.repo.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	match, err := auth.ComparePassword(req.Password, user.Password)
	if err != nil {
		if errors.Is(err, auth.ErrMalformedHash) {
			log.Printf("level=warn component=accounts msg=\"stored password hash is malformed\" user_id=%d", user.ID)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !match {
		return nil, nil, ErrInvalidCredentials
	}

	token, err := s.StartSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, token, nil
}

func (s *Service) throttleLogin(ctx context.Context, clientKey, username string) error {
	if s.limiter == nil || s.loginPerMin <= 0 {
		return nil
	}
	subject := strings.TrimSpace(clientKey) + ":" + strings.ToLower(username)
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, "login", subject, s.loginPerMin, loginWindow)
	if err != nil {
		log.Printf("level=warn component=accounts msg=\"login rate limiter unavailable; allowing attempt\" err=%v", err)
		return nil
	}
	if count > s.loginPerMin {
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

// StartSession persists a session for userID and returns its signed token.
func (s *Service) StartSession(ctx context.Context, userID int64) (*SessionToken, error) {
	now := s.now()
	session := domain.Session{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(auth.SessionTTL),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.signer.Sign(session.ID, userID, now, session.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &SessionToken{Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotAuthenticated
	}
	sessionID, err := s.signer.Parse(token)
	if err != nil {
		return nil, ErrNotAuthenticated
	}

	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	if session.Expired(s.now()) {
		if err := s.repo.DeleteSession(ctx, session.ID); err != nil {
			log.Printf("level=warn component=accounts msg=\"expired session delete failed\" err=%v", err)
		}
		return nil, ErrNotAuthenticated
	}

	user, err := s.repo.FindUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	return user, nil
}

// Logout deletes the session behind token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	sessionID, err := s.signer.Parse(token)
	if err != nil {
		return nil
	}
	return s.repo.DeleteSession(ctx, sessionID)
}

// AgentStatus returns the verification status of an agent account.
func (s *Service) AgentStatus(ctx context.Context, user *domain.User) (domain.VerificationStatus, error) {
	if user.Role != domain.RoleAgent {
		return "", ErrNotAgent
	}
	profile, err := s.repo.FindAgentProfileByUserID(ctx, user.ID)
	if err != nil {
		return "", err
	}
	return profile.VerificationStatus, nil
}
