package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubscriptionType is the plan an agent is on.
type SubscriptionType string

const (
	SubscriptionPayPerLead SubscriptionType = "pay_per_lead"
	SubscriptionUnlimited  SubscriptionType = "unlimited"
)

func (t SubscriptionType) Valid() bool {
	return t == SubscriptionPayPerLead || t == SubscriptionUnlimited
}

// Subscription maps to the `subscriptions` table.
type Subscription struct {
	ID        int64            `json:"id"`
	AgentID   int64            `json:"agentId"`
	Type      SubscriptionType `json:"type"`
	Price     decimal.Decimal  `json:"price"`
	StartDate time.Time        `json:"startDate"`
	EndDate   time.Time        `json:"endDate"`
	IsActive  bool             `json:"isActive"`
	AutoRenew bool             `json:"autoRenew"`
}

// PaymentMethod is how a payment was settled.
type PaymentMethod string

const (
	PaymentEcocash      PaymentMethod = "ecocash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCash         PaymentMethod = "cash"
	PaymentStripe       PaymentMethod = "stripe"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentEcocash, PaymentBankTransfer, PaymentCash, PaymentStripe:
		return true
	default:
		return false
	}
}

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

// Payment maps to the `payments` table.
type Payment struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"userId"`
	Amount         decimal.Decimal `json:"amount"`
	Method         PaymentMethod   `json:"method"`
	Status         string          `json:"status"`
	ReferenceID    *string         `json:"referenceId"`
	Description    *string         `json:"description"`
	CreatedAt      time.Time       `json:"createdAt"`
	SubscriptionID *int64          `json:"subscriptionId"`
	LeadPurchaseID *int64          `json:"leadPurchaseId"`
}

// SelectSubscriptionRequest is the DTO accepted by POST /api/subscriptions.
type SelectSubscriptionRequest struct {
	Type   SubscriptionType `json:"type"`
	Price  *decimal.Decimal `json:"price"`
	Months int              `json:"months"`
}

// CheckoutRequest is the DTO accepted by POST /api/create-subscription.
type CheckoutRequest struct {
	PlanType SubscriptionType `json:"planType"`
	Price    *decimal.Decimal `json:"price"`
	Months   int              `json:"months"`
}

// TopUpRequest is the DTO accepted by POST /api/payments.
type TopUpRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	Method      PaymentMethod    `json:"method"`
	Description string           `json:"description"`
}

// SystemStats is the admin dashboard summary.
type SystemStats struct {
	PendingAgents int64           `json:"pendingAgents"`
	ActiveLeads   int64           `json:"activeLeads"`
	LeadPurchases int64           `json:"leadPurchases"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	OpenFlags     int64           `json:"openFlags"`
}
