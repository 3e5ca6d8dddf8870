package app

import (
	"context"
	"errors"
	"testing"

	"github.com/tmasaiti/zimproperty/internal/auth"
	"github.com/tmasaiti/zimproperty/internal/domain"
	"github.com/tmasaiti/zimproperty/internal/store"
)

type seedRepoStub struct {
	*accountsRepoStub

	reviews    []store.VerificationReviewParams
	payments   []*domain.Payment
	properties []*domain.Property
}

func (s *seedRepoStub) ReviewAgentVerification(ctx context.Context, params store.VerificationReviewParams) (*domain.AgentProfile, error) {
	s.reviews = append(s.reviews, params)
	return &domain.AgentProfile{UserID: params.AgentUserID, VerificationStatus: params.Status}, nil
}

func (s *seedRepoStub) CreatePaymentAndCredit(ctx context.Context, payment *domain.Payment, creditAgent bool) error {
	if !creditAgent {
		panic("seeded top-up must credit the agent")
	}
	s.payments = append(s.payments, payment)
	return nil
}

func (s *seedRepoStub) CreatePropertyAndEnqueueEvent(ctx context.Context, property *domain.Property, exchange string) error {
	property.ID = int64(len(s.properties) + 1)
	s.properties = append(s.properties, property)
	return nil
}

func TestSeed_CreatesDemoAccountsOnce(t *testing.T) {
	repo := &seedRepoStub{accountsRepoStub: newAccountsRepoStub()}
	svc := NewService(repo, auth.NewSessionSigner("test-secret"), "")

	first, err := svc.Seed(context.Background(), "admin123", "demo1234")
	if err != nil {
		t.Fatalf("first seed failed: %v", err)
	}
	if len(first.Created) != 3 || len(first.Skipped) != 0 {
		t.Fatalf("expected three accounts created, got created=%v skipped=%v", first.Created, first.Skipped)
	}
	if repo.users["admin"].Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", repo.users["admin"].Role)
	}
	match, err := auth.ComparePassword("admin123", repo.users["admin"].Password)
	if err != nil || !match {
		t.Fatalf("expected admin password to verify, match=%v err=%v", match, err)
	}
	if len(repo.reviews) != 1 || repo.reviews[0].Status != domain.VerificationApproved {
		t.Fatalf("expected the demo agent to be approved, got %+v", repo.reviews)
	}
	if len(repo.payments) != 1 || !repo.payments[0].Amount.Equal(seedAgentBalance) {
		t.Fatalf("expected one opening balance payment, got %+v", repo.payments)
	}
	if len(repo.properties) != 1 || repo.properties[0].Status != domain.PropertyActive {
		t.Fatalf("expected one active demo listing, got %+v", repo.properties)
	}

	second, err := svc.Seed(context.Background(), "admin123", "demo1234")
	if err != nil {
		t.Fatalf("second seed failed: %v", err)
	}
	if len(second.Created) != 0 || len(second.Skipped) != 3 {
		t.Fatalf("expected every account skipped, got created=%v skipped=%v", second.Created, second.Skipped)
	}
	if len(repo.reviews) != 1 || len(repo.payments) != 1 || len(repo.properties) != 1 {
		t.Fatalf("rerun must not write again: reviews=%d payments=%d properties=%d",
			len(repo.reviews), len(repo.payments), len(repo.properties))
	}
}

func TestSeed_RejectsShortDemoPassword(t *testing.T) {
	repo := &seedRepoStub{accountsRepoStub: newAccountsRepoStub()}
	svc := NewService(repo, auth.NewSessionSigner("test-secret"), "")

	_, err := svc.Seed(context.Background(), "admin123", "abc")
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error for short demo password, got %v", err)
	}
}
