package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LeadStatus is the agent's own follow-up state for a purchased lead.
type LeadStatus string

const (
	LeadPending   LeadStatus = "pending"
	LeadContacted LeadStatus = "contacted"
	LeadClosed    LeadStatus = "closed"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadPending, LeadContacted, LeadClosed:
		return true
	default:
		return false
	}
}

// FlagStatus is the moderation state of a flagged lead.
type FlagStatus string

const (
	FlagOpen      FlagStatus = "open"
	FlagDismissed FlagStatus = "dismissed"
	FlagRemoved   FlagStatus = "removed"
)

// LeadPurchase maps to the `lead_purchases` table.
type LeadPurchase struct {
	ID             int64           `json:"id"`
	AgentID        int64           `json:"agentId"`
	PropertyID     int64           `json:"propertyId"`
	PurchaseDate   time.Time       `json:"purchaseDate"`
	Price          decimal.Decimal `json:"price"`
	Contacted      bool            `json:"contacted"`
	Status         LeadStatus      `json:"status"`
	SellerRating   *int            `json:"sellerRating"`
	Feedback       *string         `json:"feedback"`
	Flagged        bool            `json:"flagged"`
	FlagReason     *string         `json:"flagReason"`
	FlagStatus     *FlagStatus     `json:"flagStatus"`
	FlaggedAt      *time.Time      `json:"flaggedAt"`
	FlagResolution *string         `json:"flagResolution"`
}

// LeadPurchaseWithProperty is a purchase joined with the property it unlocked.
type LeadPurchaseWithProperty struct {
	LeadPurchase
	Property Property `json:"property"`
}

// FlaggedLead is an open flag as shown to admins.
type FlaggedLead struct {
	LeadPurchase
	Property Property `json:"property"`
	Agent    User     `json:"agent"`
}

// LeadUpdate carries the agent-editable fields of a purchase. Nil fields are left unchanged.
type LeadUpdate struct {
	Contacted    *bool       `json:"contacted"`
	Status       *LeadStatus `json:"status"`
	SellerRating *int        `json:"sellerRating"`
	Feedback     *string     `json:"feedback"`
	Flagged      *bool       `json:"flagged"`
	FlagReason   *string     `json:"flagReason"`
}

// PurchaseLeadRequest is the DTO accepted by POST /api/leads/purchase.
type PurchaseLeadRequest struct {
	PropertyID int64            `json:"propertyId"`
	Price      *decimal.Decimal `json:"price"`
}

// FlagAction is the admin decision on a flagged lead.
type FlagAction string

const (
	FlagActionApprove FlagAction = "approve"
	FlagActionRemove  FlagAction = "remove"
)

// ReviewFlagRequest is the DTO accepted by PATCH /api/admin/flagged-leads/:id.
type ReviewFlagRequest struct {
	Action FlagAction `json:"action"`
	Reason string     `json:"reason"`
}
