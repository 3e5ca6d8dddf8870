package app

import (
	"context"
	"errors"
	"log"

	"github.com/shopspring/decimal"
	"github.com/tmasaiti/zimproperty/internal/auth"
	"github.com/tmasaiti/zimproperty/internal/domain"
	"github.com/tmasaiti/zimproperty/internal/store"
)

const (
	seedAdminUsername  = "admin"
	seedSellerUsername = "seller"
	seedAgentUsername  = "agent"
)

var seedAgentBalance = decimal.NewFromInt(100)

// SeedResult reports which demo accounts were created on this run.
type SeedResult struct {
	Created []string
	Skipped []string
}

// Seed creates the admin, a demo seller and an approved demo agent. Accounts
// whose username already exists are left untouched, so reruns are safe.
func (s *Service) Seed(ctx context.Context, adminPassword, demoPassword string) (*SeedResult, error) {
	result := &SeedResult{}

	admin, created, err := s.seedAdmin(ctx, adminPassword)
	if err != nil {
		return nil, err
	}
	result.record(seedAdminUsername, created)

	seller, created, err := s.seedAccount(ctx, domain.RegisterRequest{
		Username:          seedSellerUsername,
		Password:          demoPassword,
		ConfirmPassword:   demoPassword,
		Email:             "seller@zimproperty.co.zw",
		FirstName:         "Tendai",
		LastName:          "Moyo",
		Phone:             "+263771234567",
		Role:              domain.RoleSeller,
		WhatsappPreferred: true,
	})
	if err != nil {
		return nil, err
	}
	result.record(seedSellerUsername, created)

	agent, created, err := s.seedAccount(ctx, domain.RegisterRequest{
		Username:        seedAgentUsername,
		Password:        demoPassword,
		ConfirmPassword: demoPassword,
		Email:           "agent@zimproperty.co.zw",
		FirstName:       "Faith",
		LastName:        "Chikwanha",
		Phone:           "+263772345678",
		Role:            domain.RoleAgent,
		AgencyName:      "Harare Realty",
		LicenseDocument: "EAC-2024-0117",
	})
	if err != nil {
		return nil, err
	}
	result.record(seedAgentUsername, created)

	// The demo agent is only approved and funded when it was just created.
	if created {
		if _, err := s.ReviewAgentVerification(ctx, admin, agent.ID, VerificationReviewRequest{
			Status: domain.VerificationApproved,
			Note:   "Seeded demo agent",
		}); err != nil {
			return nil, err
		}
		amount := seedAgentBalance
		if _, err := s.TopUp(ctx, agent, domain.TopUpRequest{
			Amount:      &amount,
			Method:      domain.PaymentCash,
			Description: "Opening balance",
		}); err != nil {
			return nil, err
		}
	}

	if result.created(seedSellerUsername) {
		price := decimal.NewFromInt(85000)
		size := decimal.NewFromInt(450)
		if _, err := s.CreateProperty(ctx, seller, domain.CreatePropertyRequest{
			Type:        domain.PropertyResidential,
			Location:    "Borrowdale",
			Address:     "12 Crowhill Road, Borrowdale, Harare",
			Price:       &price,
			Size:        &size,
			Description: "Four bedroom family home with borehole and solar backup.",
		}); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *Service) seedAdmin(ctx context.Context, password string) (*domain.User, bool, error) {
	existing, err := s.repo.FindUserByUsername(ctx, seedAdminUsername)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, false, err
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, false, err
	}
	admin, err := s.repo.CreateUser(ctx, store.CreateUserParams{
		User: domain.User{
			Username:  seedAdminUsername,
			Password:  hashed,
			Email:     "admin@zimproperty.co.zw",
			FirstName: "Admin",
			LastName:  "User",
			Phone:     "+263770000000",
			Role:      domain.RoleAdmin,
		},
		Exchange: s.exchange,
	})
	if err != nil {
		return nil, false, err
	}
	log.Printf("level=info component=seed msg=\"admin created\" user_id=%d", admin.ID)
	return admin, true, nil
}

func (s *Service) seedAccount(ctx context.Context, req domain.RegisterRequest) (*domain.User, bool, error) {
	existing, err := s.repo.FindUserByUsername(ctx, req.Username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, false, err
	}

	user, err := s.Register(ctx, req)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (r *SeedResult) record(username string, created bool) {
	if created {
		r.Created = append(r.Created, username)
		return
	}
	r.Skipped = append(r.Skipped, username)
}

func (r *SeedResult) created(username string) bool {
	for _, name := range r.Created {
		if name == username {
			return true
		}
	}
	return false
}
