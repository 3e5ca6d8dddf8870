package domain

import "time"

// Notification types written by the marketplace.
const (
	NotificationAgentVerification     = "agent_verification"
	NotificationNewProperty           = "new_property"
	NotificationLeadPurchase          = "lead_purchase"
	NotificationVerificationUpdate    = "verification_update"
	NotificationSubscriptionActivated = "subscription_activated"
	NotificationListingRemoved        = "listing_removed"
	NotificationFlagResolved          = "flag_resolved"
)

// Notification maps to the `notifications` table.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
	LinkURL   *string   `json:"linkUrl"`
	// DedupeKey makes redelivered fan-out writes idempotent.
	DedupeKey *string `json:"-"`
}
