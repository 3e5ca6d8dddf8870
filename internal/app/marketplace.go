package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/tmasaiti/zimproperty/internal/domain"
	"github.com/tmasaiti/zimproperty/internal/store"
)

const minDescriptionLength = 10

func validateProperty(req *domain.CreatePropertyRequest) error {
	req.Location = strings.TrimSpace(req.Location)
	req.Address = strings.TrimSpace(req.Address)
	req.Description = strings.TrimSpace(req.Description)

	var errs fieldErrors
	if !req.Type.Valid() {
		errs.add("type", "Type must be one of residential, commercial, land, apartment")
	}
	if req.Location == "" {
		errs.add("location", "Location is required")
	}
	if req.Price == nil || req.Price.LessThan(decimal.NewFromInt(1)) {
		errs.add("price", "Price must be at least 1")
	}
	if utf8.RuneCountInString(req.Description) < minDescriptionLength {
		errs.add("description", fmt.Sprintf("Description must be at least %d characters", minDescriptionLength))
	}
	if req.Size != nil && !req.Size.IsPositive() {
		errs.add("size", "Size must be positive")
	}
	return errs.err()
}

// CreateProperty lists a new property for seller. The listing is active for
// domain.ListingLifetime and subscribers are notified through the outbox.
func (s *Service) CreateProperty(ctx context.Context, seller *domain.User, req domain.CreatePropertyRequest) (*domain.Property, error) {
	if err := validateProperty(&req); err != nil {
		return nil, err
	}

	photos := make([]string, 0, len(req.Photos))
	for _, photo := range req.Photos {
		if trimmed := strings.TrimSpace(photo); trimmed != "" {
			photos = append(photos, trimmed)
		}
	}

	// Postgres keeps microseconds; both timestamps must survive the round trip.
	now := s.now().UTC().Truncate(time.Microsecond)
	expiresAt := now.Add(domain.ListingLifetime)
	property := &domain.Property{
		SellerID:    seller.ID,
		Type:        req.Type,
		Location:    req.Location,
		Address:     req.Address,
		Price:       *req.Price,
		Description: req.Description,
		Photos:      photos,
		Status:      domain.PropertyActive,
		CreatedAt:   now,
		ExpiresAt:   &expiresAt,
	}
	if req.Size != nil {
		property.Size = decimal.NewNullDecimal(*req.Size)
	}

	if err := s.repo.CreatePropertyAndEnqueueEvent(ctx, property, s.exchange); err != nil {
		return nil, err
	}
	s.invalidatePropertyCache(ctx)

	log.Printf("level=info component=marketplace msg=\"property listed\" property_id=%d seller_id=%d", property.ID, seller.ID)
	return property, nil
}

// ListSellerProperties returns the seller's own listings.
func (s *Service) ListSellerProperties(ctx context.Context, seller *domain.User) ([]domain.Property, error) {
	return s.repo.ListPropertiesBySeller(ctx, seller.ID)
}

// BrowseProperties lists properties matching filter, served from cache when possible.
func (s *Service) BrowseProperties(ctx context.Context, filter domain.PropertyFilter) ([]domain.Property, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, filter)
		if err != nil {
			log.Printf("level=warn component=property_cache msg=\"cache read failed; querying database\" err=%v", err)
		} else if ok {
			return cached, nil
		}
	}

	properties, err := s.repo.ListProperties(ctx, filter)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, filter, properties); err != nil {
			log.Printf("level=warn component=property_cache msg=\"cache write failed\" err=%v", err)
		}
	}
	return properties, nil
}

// GetPropertyDetail returns a property with seller contact. Email and phone are
// masked unless viewer is the seller, an admin, or an agent who bought the lead.
func (s *Service) GetPropertyDetail(ctx context.Context, viewer *domain.User, propertyID int64) (*domain.PropertyDetail, error) {
	detail, err := s.repo.FindPropertyDetail(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	unlocked, err := s.canSeeSellerContact(ctx, viewer, detail)
	if err != nil {
		return nil, err
	}
	if !unlocked {
		detail.Seller.Email = domain.MaskedContactValue
		detail.Seller.Phone = domain.MaskedContactValue
	}
	return detail, nil
}

func (s *Service) canSeeSellerContact(ctx context.Context, viewer *domain.User, detail *domain.PropertyDetail) (bool, error) {
	switch {
	case viewer.Role == domain.RoleAdmin:
		return true, nil
	case viewer.ID == detail.SellerID:
		return true, nil
	case viewer.Role == domain.RoleAgent:
		return s.repo.HasPurchasedLead(ctx, viewer.ID, detail.ID)
	default:
		return false, nil
	}
}

// PurchaseLead buys the contact details of a property from the agent's balance.
func (s *Service) PurchaseLead(ctx context.Context, agent *domain.User, req domain.PurchaseLeadRequest) (*domain.LeadPurchase, error) {
	if req.PropertyID <= 0 || req.Price == nil || !req.Price.IsPositive() {
		return nil, badRequest("Property ID and price are required")
	}

	lead, err := s.repo.PurchaseLead(ctx, store.PurchaseLeadParams{
		AgentID:            agent.ID,
		PropertyID:         req.PropertyID,
		Price:              *req.Price,
		PaymentDescription: fmt.Sprintf("Lead purchase for property #%d", req.PropertyID),
		SellerNotification: leadPurchaseNotification(req.PropertyID),
		Exchange:           s.exchange,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=marketplace msg=\"lead purchased\" lead_id=%d agent_id=%d property_id=%d price=%s",
		lead.ID, agent.ID, req.PropertyID, lead.Price.StringFixed(2))
	return lead, nil
}

// ListPurchasedLeads returns the agent's purchases with their properties.
func (s *Service) ListPurchasedLeads(ctx context.Context, agent *domain.User) ([]domain.LeadPurchaseWithProperty, error) {
	return s.repo.ListPurchasedLeads(ctx, agent.ID)
}

func validateLeadUpdate(update *domain.LeadUpdate) error {
	var errs fieldErrors
	if update.Status != nil && !update.Status.Valid() {
		errs.add("status", "Status must be one of pending, contacted, closed")
	}
	if update.SellerRating != nil && (*update.SellerRating < 1 || *update.SellerRating > 5) {
		errs.add("sellerRating", "Seller rating must be between 1 and 5")
	}
	if update.Feedback != nil {
		trimmed := strings.TrimSpace(*update.Feedback)
		update.Feedback = &trimmed
	}
	if update.Flagged != nil && *update.Flagged {
		reason := ""
		if update.FlagReason != nil {
			reason = strings.TrimSpace(*update.FlagReason)
		}
		if reason == "" {
			errs.add("flagReason", "A reason is required when flagging a lead")
		}
		update.FlagReason = &reason
	}
	return errs.err()
}

// UpdateLead records the agent's follow-up on a purchased lead. Only the
// purchasing agent may update it.
func (s *Service) UpdateLead(ctx context.Context, agent *domain.User, leadID int64, update domain.LeadUpdate) (*domain.LeadPurchase, error) {
	lead, err := s.repo.FindLeadPurchaseByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.AgentID != agent.ID {
		return nil, ErrNotLeadOwner
	}

	if err := validateLeadUpdate(&update); err != nil {
		return nil, err
	}
	if update.Contacted != nil && *update.Contacted && update.Status == nil {
		contacted := domain.LeadContacted
		update.Status = &contacted
	}

	updated, err := s.repo.UpdateLeadPurchase(ctx, leadID, update)
	if err != nil {
		return nil, err
	}
	if update.Flagged != nil && *update.Flagged {
		log.Printf("level=info component=marketplace msg=\"lead flagged\" lead_id=%d agent_id=%d property_id=%d", lead.ID, agent.ID, lead.PropertyID)
	}
	return updated, nil
}
