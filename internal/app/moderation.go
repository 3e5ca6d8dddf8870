package app

import (
	"context"
	"log"
	"strings"

	"github.com/tmasaiti/zimproperty/internal/domain"
	"github.com/tmasaiti/zimproperty/internal/store"
)

// VerificationReviewRequest is the admin decision on a pending agent.
type VerificationReviewRequest struct {
	Status domain.VerificationStatus `json:"status"`
	Note   string                    `json:"note"`
}

// PendingAgents lists agents awaiting verification, newest first.
func (s *Service) PendingAgents(ctx context.Context) ([]domain.PendingAgent, error) {
	return s.repo.ListPendingAgents(ctx)
}

// ReviewAgentVerification approves or rejects a pending agent and notifies them.
func (s *Service) ReviewAgentVerification(ctx context.Context, admin *domain.User, agentUserID int64, req VerificationReviewRequest) (*domain.AgentProfile, error) {
	if req.Status != domain.VerificationApproved && req.Status != domain.VerificationRejected {
		return nil, badRequest("Invalid status")
	}
	note := strings.TrimSpace(req.Note)

	profile, err := s.repo.ReviewAgentVerification(ctx, store.VerificationReviewParams{
		AgentUserID:  agentUserID,
		Status:       req.Status,
		Note:         note,
		ReviewedAt:   s.now(),
		Notification: verificationNotification(req.Status, note),
		Exchange:     s.exchange,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=moderation msg=\"agent verification reviewed\" admin_id=%d agent_id=%d status=%s", admin.ID, agentUserID, req.Status)
	return profile, nil
}

// FlaggedLeads lists open flags with their purchase, property and agent.
func (s *Service) FlaggedLeads(ctx context.Context) ([]domain.FlaggedLead, error) {
	return s.repo.ListFlaggedLeads(ctx)
}

// ReviewFlag resolves an open flag. Approving dismisses the flag and keeps the
// listing; removing archives the listing and requires a reason.
func (s *Service) ReviewFlag(ctx context.Context, admin *domain.User, leadPurchaseID int64, req domain.ReviewFlagRequest) (*domain.LeadPurchase, error) {
	reason := strings.TrimSpace(req.Reason)

	var errs fieldErrors
	switch req.Action {
	case domain.FlagActionApprove:
	case domain.FlagActionRemove:
		if reason == "" {
			errs.add("reason", "A reason is required to remove a listing")
		}
	default:
		errs.add("action", "Action must be approve or remove")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	lead, err := s.repo.FindLeadPurchaseByID(ctx, leadPurchaseID)
	if err != nil {
		return nil, err
	}

	params := store.ResolveFlagParams{
		LeadPurchaseID:    leadPurchaseID,
		Action:            req.Action,
		Reason:            reason,
		AgentNotification: flagResolvedNotification(lead.PropertyID, req.Action, reason),
		Exchange:          s.exchange,
	}
	if req.Action == domain.FlagActionRemove {
		seller := listingRemovedNotification(lead.PropertyID, reason)
		params.SellerNotification = &seller
	}

	resolved, err := s.repo.ResolveFlag(ctx, params)
	if err != nil {
		return nil, err
	}
	if req.Action == domain.FlagActionRemove {
		s.invalidatePropertyCache(ctx)
	}

	log.Printf("level=info component=moderation msg=\"flag reviewed\" admin_id=%d lead_id=%d property_id=%d action=%s",
		admin.ID, leadPurchaseID, lead.PropertyID, req.Action)
	return resolved, nil
}

// Stats returns the admin dashboard counters.
func (s *Service) Stats(ctx context.Context) (*domain.SystemStats, error) {
	return s.repo.GetSystemStats(ctx)
}
