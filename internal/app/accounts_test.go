package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tmasaiti/zimproperty/internal/auth"
	"github.com/tmasaiti/zimproperty/internal/domain"
	"github.com/tmasaiti/zimproperty/internal/store"
)

type accountsRepoStub struct {
	store.Repository

	users    map[string]*domain.User
	sessions map[uuid.UUID]domain.Session

	createParams   *store.CreateUserParams
	deletedSession *uuid.UUID
}

func newAccountsRepoStub() *accountsRepoStub {
	return &accountsRepoStub{
		users:    map[string]*domain.User{},
		sessions: map[uuid.UUID]domain.Session{},
	}
}

func (s *accountsRepoStub) CreateUser(ctx context.Context, params store.CreateUserParams) (*domain.User, error) {
	s.createParams = &params
	if _, exists := s.users[params.User.Username]; exists {
		return nil, store.ErrUsernameTaken
	}
	user := params.User
	user.ID = int64(len(s.users) + 1)
	s.users[user.Username] = &user
	return &user, nil
}

func (s *accountsRepoStub) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func (s *accountsRepoStub) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *accountsRepoStub) CreateSession(ctx context.Context, session domain.Session) error {
	s.sessions[session.ID] = session
	return nil
}

func (s *accountsRepoStub) FindSessionByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return &session, nil
}

func (s *accountsRepoStub) DeleteSession(ctx context.Context, id uuid.UUID) error {
	s.deletedSession = &id
	delete(s.sessions, id)
	return nil
}

type limiterStub struct {
	count int
	err   error
	calls int
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	l.calls++
	if l.err != nil {
		return 0, 0, l.err
	}
	return l.count, 42, nil
}

func validSellerRequest() domain.RegisterRequest {
	return domain.RegisterRequest{
		Username:        "tendai",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		Email:           "tendai@example.com",
		FirstName:       "Tendai",
		LastName:        "Moyo",
		Phone:           "0771234567",
		Role:            domain.RoleSeller,
	}
}

func TestValidateRegistration(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*domain.RegisterRequest)
		wantField string
	}{
		{name: "valid seller", mutate: func(*domain.RegisterRequest) {}},
		{name: "missing username", mutate: func(r *domain.RegisterRequest) { r.Username = "  " }, wantField: "username"},
		{name: "bad email", mutate: func(r *domain.RegisterRequest) { r.Email = "not-an-email" }, wantField: "email"},
		{name: "short password", mutate: func(r *domain.RegisterRequest) { r.Password, r.ConfirmPassword = "abc", "abc" }, wantField: "password"},
		{name: "password mismatch", mutate: func(r *domain.RegisterRequest) { r.ConfirmPassword = "secret2" }, wantField: "confirmPassword"},
		{name: "short phone", mutate: func(r *domain.RegisterRequest) { r.Phone = "0771" }, wantField: "phone"},
		{name: "admin role rejected", mutate: func(r *domain.RegisterRequest) { r.Role = domain.RoleAdmin }, wantField: "role"},
		{name: "agent without agency", mutate: func(r *domain.RegisterRequest) {
			r.Role = domain.RoleAgent
			r.LicenseDocument = "license.pdf"
		}, wantField: "agencyName"},
		{name: "agent without license", mutate: func(r *domain.RegisterRequest) {
			r.Role = domain.RoleAgent
			r.AgencyName = "Harare Homes"
		}, wantField: "licenseDocument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSellerRequest()
			tt.mutate(&req)
			err := validateRegistration(&req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if validationErr.Fields[0].Field != tt.wantField {
				t.Fatalf("expected first field %q, got %q", tt.wantField, validationErr.Fields[0].Field)
			}
		})
	}
}

func TestRegister_AgentGetsPendingProfileAndAdminNotification(t *testing.T) {
	repo := newAccountsRepoStub()
	svc := NewService(repo, auth.NewSessionSigner("test-secret"), "")

	req := validSellerRequest()
	req.Role = domain.RoleAgent
	req.AgencyName = "Harare Homes"
	req.LicenseDocument = "license.pdf"

	user, err := svc.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Role != domain.RoleAgent {
		t.Fatalf("expected agent role, got %s", user.Role)
	}

	params := repo.createParams
	if params.User.Password == req.Password {
		t.Fatal("expected password to be hashed before storage")
	}
	if ok, err := auth.ComparePassword(req.Password, params.User.Password); err != nil || !ok {
		t.Fatalf("stored hash does not verify: ok=%v err=%v", ok, err)
	}
	if params.AgentProfile == nil || params.AgentProfile.VerificationStatus != domain.VerificationPending {
		t.Fatalf("expected pending agent profile, got %+v", params.AgentProfile)
	}
	if params.AdminNotification == nil || params.AdminNotification.Type != domain.NotificationAgentVerification {
		t.Fatalf("expected admin notification, got %+v", params.AdminNotification)
	}
	if params.Exchange != domain.EventExchange {
		t.Fatalf("expected default exchange, got %q", params.Exchange)
	}
}

func TestRegister_SellerHasNoProfile(t *testing.T) {
	repo := newAccountsRepoStub()
	svc := NewService(repo, auth.NewSessionSigner("test-secret"), "")

	if _, err := svc.Register(context.Background(), validSellerRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.createParams.AgentProfile != nil || repo.createParams.AdminNotification != nil {
		t.Fatal("expected seller registration without agent profile or admin notification")
	}
}

func seededAccounts(t *testing.T) (*Service, *accountsRepoStub) {
	t.Helper()
	repo := newAccountsRepoStub()
	svc := NewService(repo, auth.NewSessionSigner("test-secret"), "")
	if _, err := svc.Register(context.Background(), validSellerRequest()); err != nil {
		t.Fatalf("seed register: %v", err)
	}
	return svc, repo
}

func TestLogin_WrongPasswordAndUnknownUser(t *testing.T) {
	svc, _ := seededAccounts(t)

	if _, _, err := svc.Login(context.Background(), domain.LoginRequest{Username: "tendai", Password: "wrong-pass"}, "127.0.0.1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), domain.LoginRequest{Username: "nobody", Password: "secret1"}, "127.0.0.1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestLogin_SessionAuthenticatesUntilLogout(t *testing.T) {
	svc, repo := seededAccounts(t)
	ctx := context.Background()

	user, token, err := svc.Login(ctx, domain.LoginRequest{Username: "tendai", Password: "secret1"}, "127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected login error: %v", err)
	}
	if got := token.ExpiresAt.Sub(repo.sessions[firstSessionID(repo)].CreatedAt); got != auth.SessionTTL {
		t.Fatalf("expected session ttl %s, got %s", auth.SessionTTL, got)
	}

	authed, err := svc.Authenticate(ctx, token.Token)
	if err != nil {
		t.Fatalf("unexpected authenticate error: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, authed.ID)
	}

	if err := svc.Logout(ctx, token.Token); err != nil {
		t.Fatalf("unexpected logout error: %v", err)
	}
	if _, err := svc.Authenticate(ctx, token.Token); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated after logout, got %v", err)
	}
}

func firstSessionID(repo *accountsRepoStub) uuid.UUID {
	for id := range repo.sessions {
		return id
	}
	return uuid.Nil
}

func TestAuthenticate_ExpiredSessionIsDeleted(t *testing.T) {
	svc, repo := seededAccounts(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Second)
	svc.SetClock(func() time.Time { return start })
	token, err := svc.StartSession(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Token signature still valid; the server-side session is past its expiry.
	session := repo.sessions[firstSessionID(repo)]
	session.ExpiresAt = start.Add(time.Hour)
	repo.sessions[session.ID] = session
	svc.SetClock(func() time.Time { return start.Add(2 * time.Hour) })

	if _, err := svc.Authenticate(ctx, token.Token); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if repo.deletedSession == nil || *repo.deletedSession != session.ID {
		t.Fatal("expected expired session to be deleted")
	}
}

func TestLogin_RateLimited(t *testing.T) {
	svc, _ := seededAccounts(t)
	limiter := &limiterStub{count: 11}
	svc.SetLoginRateLimiter(limiter, 10)

	_, _, err := svc.Login(context.Background(), domain.LoginRequest{Username: "tendai", Password: "secret1"}, "127.0.0.1")
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rateErr.RetryAfterSeconds != 42 {
		t.Fatalf("expected retry after 42, got %d", rateErr.RetryAfterSeconds)
	}
}

func TestLogin_LimiterFailureAllowsAttempt(t *testing.T) {
	svc, _ := seededAccounts(t)
	limiter := &limiterStub{err: errors.New("redis down")}
	svc.SetLoginRateLimiter(limiter, 10)

	if _, _, err := svc.Login(context.Background(), domain.LoginRequest{Username: "tendai", Password: "secret1"}, "127.0.0.1"); err != nil {
		t.Fatalf("expected login to succeed when limiter is down, got %v", err)
	}
	if limiter.calls != 1 {
		t.Fatalf("expected limiter to be consulted once, got %d", limiter.calls)
	}
}

func TestAgentStatus_RejectsNonAgents(t *testing.T) {
	svc, _ := seededAccounts(t)
	seller := &domain.User{ID: 1, Role: domain.RoleSeller}
	if _, err := svc.AgentStatus(context.Background(), seller); !errors.Is(err, ErrNotAgent) {
		t.Fatalf("expected ErrNotAgent, got %v", err)
	}
}
