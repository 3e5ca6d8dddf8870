package app

import (
	"context"
	"errors"
	"testing"

	"github.com/tmasaiti/zimproperty/internal/auth"
	"github.com/tmasaiti/zimproperty/internal/domain"
	"github.com/tmasaiti/zimproperty/internal/store"
)

type moderationRepoStub struct {
	store.Repository

	lead          *domain.LeadPurchase
	resolveParams *store.ResolveFlagParams
	reviewParams  *store.VerificationReviewParams
	reviewErr     error
}

func (s *moderationRepoStub) FindLeadPurchaseByID(ctx context.Context, id int64) (*domain.LeadPurchase, error) {
	if s.lead == nil || s.lead.ID != id {
		return nil, store.ErrLeadNotFound
	}
	return s.lead, nil
}

func (s *moderationRepoStub) ResolveFlag(ctx context.Context, params store.ResolveFlagParams) (*domain.LeadPurchase, error) {
	s.resolveParams = &params
	resolved := *s.lead
	return &resolved, nil
}

func (s *moderationRepoStub) ReviewAgentVerification(ctx context.Context, params store.VerificationReviewParams) (*domain.AgentProfile, error) {
	s.reviewParams = &params
	if s.reviewErr != nil {
		return nil, s.reviewErr
	}
	return &domain.AgentProfile{UserID: params.AgentUserID, VerificationStatus: params.Status}, nil
}

var testAdmin = &domain.User{ID: 1, Role: domain.RoleAdmin}

func flaggedLeadRepo() *moderationRepoStub {
	open := domain.FlagOpen
	return &moderationRepoStub{lead: &domain.LeadPurchase{ID: 7, AgentID: 5, PropertyID: 10, Flagged: true, FlagStatus: &open}}
}

func TestReviewFlag_RemoveNeedsReason(t *testing.T) {
	repo := flaggedLeadRepo()
	svc := NewService(repo, auth.NewSessionSigner("test-secret"), "")

	_, err := svc.ReviewFlag(context.Background(), testAdmin, 7, domain.ReviewFlagRequest{Action: domain.FlagActionRemove, Reason: " "})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) || validationErr.Fields[0].Field != "reason" {
		t.Fatalf("expected reason validation error, got %v", err)
	}

	_, err = svc.ReviewFlag(context.Background(), testAdmin, 7, domain.ReviewFlagRequest{Action: "ban"})
	if !errors.As(err, &validationErr) || validationErr.Fields[0].Field != "action" {
		t.Fatalf("expected action validation error, got %v", err)
	}
	if repo.resolveParams != nil {
		t.Fatal("expected no store call for invalid requests")
	}
}

func TestReviewFlag_RemoveNotifiesSellerAndInvalidatesCache(t *testing.T) {
	repo := flaggedLeadRepo()
	cache := newCacheStub()
	svc := NewService(repo, auth.NewSessionSigner("test-secret"), "")
	svc.SetPropertyCache(cache)

	if _, err := svc.ReviewFlag(context.Background(), testAdmin, 7, domain.ReviewFlagRequest{Action: domain.FlagActionRemove, Reason: "Duplicate listing"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params := repo.resolveParams
	if params.SellerNotification == nil || params.SellerNotification.Type != domain.NotificationListingRemoved {
		t.Fatalf("expected listing removed notification, got %+v", params.SellerNotification)
	}
	if params.AgentNotification.Type != domain.NotificationFlagResolved {
		t.Fatalf("expected flag resolved notification, got %q", params.AgentNotification.Type)
	}
	if params.Reason != "Duplicate listing" {
		t.Fatalf("unexpected reason %q", params.Reason)
	}
	if cache.invalidated != 1 {
		t.Fatalf("expected cache invalidation, got %d", cache.invalidated)
	}
}

func TestReviewFlag_ApproveKeepsListing(t *testing.T) {
	repo := flaggedLeadRepo()
	cache := newCacheStub()
	svc := NewService(repo, auth.NewSessionSigner("test-secret"), "")
	svc.SetPropertyCache(cache)

	if _, err := svc.ReviewFlag(context.Background(), testAdmin, 7, domain.ReviewFlagRequest{Action: domain.FlagActionApprove}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.resolveParams.SellerNotification != nil {
		t.Fatal("expected no seller notification when the flag is dismissed")
	}
	if cache.invalidated != 0 {
		t.Fatal("expected cache to be kept when the listing stays")
	}
}

func TestReviewFlag_UnknownLead(t *testing.T) {
	svc := NewService(flaggedLeadRepo(), auth.NewSessionSigner("test-secret"), "")
	_, err := svc.ReviewFlag(context.Background(), testAdmin, 404, domain.ReviewFlagRequest{Action: domain.FlagActionApprove})
	if !errors.Is(err, store.ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
}

func TestReviewAgentVerification(t *testing.T) {
	repo := &moderationRepoStub{}
	svc := NewService(repo, auth.NewSessionSigner("test-secret"), "")

	if _, err := svc.ReviewAgentVerification(context.Background(), testAdmin, 5, VerificationReviewRequest{Status: domain.VerificationPending}); err == nil {
		t.Fatal("expected pending to be rejected as a review outcome")
	}

	profile, err := svc.ReviewAgentVerification(context.Background(), testAdmin, 5, VerificationReviewRequest{Status: domain.VerificationRejected, Note: " License expired "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.VerificationStatus != domain.VerificationRejected {
		t.Fatalf("expected rejected, got %s", profile.VerificationStatus)
	}
	if repo.reviewParams.Note != "License expired" {
		t.Fatalf("expected trimmed note, got %q", repo.reviewParams.Note)
	}
	if want := "Your agent account verification was rejected. Reason: License expired"; repo.reviewParams.Notification.Message != want {
		t.Fatalf("unexpected notification message %q", repo.reviewParams.Notification.Message)
	}

	repo.reviewErr = store.ErrVerificationAlreadyReviewed
	if _, err := svc.ReviewAgentVerification(context.Background(), testAdmin, 5, VerificationReviewRequest{Status: domain.VerificationApproved}); !errors.Is(err, store.ErrVerificationAlreadyReviewed) {
		t.Fatalf("expected ErrVerificationAlreadyReviewed, got %v", err)
	}
}
