/**
 * @description
 * This file defines the `Repository` interface, the single persistence contract
 * of the marketplace. Business logic in internal/app depends only on this
 * interface, so the PostgreSQL implementation can be swapped for stubs in tests.
 *
 * @notes
 * - Writes that must happen together (purchase, webhook reconciliation,
 *   moderation) are exposed as one method each and run in one transaction.
 * - Methods that stage an outbox event take the exchange name; the event
 *   payload is built inside the transaction once row ids are known.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tmasaiti/zimproperty/internal/domain"
)

var (
	ErrUserNotFound                = errors.New("user not found")
	ErrUsernameTaken               = errors.New("username already exists")
	ErrEmailTaken                  = errors.New("email already exists")
	ErrSessionNotFound             = errors.New("session not found")
	ErrAgentProfileNotFound        = errors.New("agent profile not found")
	ErrAgentNotVerified            = errors.New("agent account is not verified")
	ErrInsufficientBalance         = errors.New("insufficient balance")
	ErrPropertyNotFound            = errors.New("property not found")
	ErrPropertyUnavailable         = errors.New("property is not available")
	ErrLeadNotFound                = errors.New("lead purchase not found")
	ErrLeadAlreadyPurchased        = errors.New("lead already purchased")
	ErrVerificationAlreadyReviewed = errors.New("agent verification already reviewed")
	ErrFlagNotOpen                 = errors.New("flag is not open")
	ErrNotificationNotFound        = errors.New("notification not found")
	ErrSubscriptionNotFound        = errors.New("subscription not found")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Users, agent profiles and sessions
	CreateUser(ctx context.Context, params CreateUserParams) (*domain.User, error)
	FindUserByID(ctx context.Context, id int64) (*domain.User, error)
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
	FindAgentProfileByUserID(ctx context.Context, userID int64) (*domain.AgentProfile, error)
	CreateSession(ctx context.Context, session domain.Session) error
	FindSessionByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// Properties
	CreatePropertyAndEnqueueEvent(ctx context.Context, property *domain.Property, exchange string) error
	ListPropertiesBySeller(ctx context.Context, sellerID int64) ([]domain.Property, error)
	ListProperties(ctx context.Context, filter domain.PropertyFilter) ([]domain.Property, error)
	FindPropertyDetail(ctx context.Context, id int64) (*domain.PropertyDetail, error)
	ExpireListings(ctx context.Context, now time.Time) (int64, error)

	// Lead purchases
	HasPurchasedLead(ctx context.Context, agentID, propertyID int64) (bool, error)
	PurchaseLead(ctx context.Context, params PurchaseLeadParams) (*domain.LeadPurchase, error)
	ListPurchasedLeads(ctx context.Context, agentID int64) ([]domain.LeadPurchaseWithProperty, error)
	FindLeadPurchaseByID(ctx context.Context, id int64) (*domain.LeadPurchase, error)
	UpdateLeadPurchase(ctx context.Context, id int64, update domain.LeadUpdate) (*domain.LeadPurchase, error)

	// Subscriptions and payments
	FindActiveSubscription(ctx context.Context, agentID int64) (*domain.Subscription, error)
	SelectSubscription(ctx context.Context, params SelectSubscriptionParams) (*domain.Subscription, error)
	ActivateSubscriptionFromWebhook(ctx context.Context, params WebhookActivationParams) (*domain.Subscription, bool, error)
	RecordWebhookEvent(ctx context.Context, record WebhookEventRecord) (bool, error)
	CreatePaymentAndCredit(ctx context.Context, payment *domain.Payment, creditAgent bool) error
	ListPaymentsByUser(ctx context.Context, userID int64) ([]domain.Payment, error)
	ListActiveSubscriberIDs(ctx context.Context, now time.Time) ([]int64, error)
	LapseSubscriptions(ctx context.Context, now time.Time) (int64, error)

	// Notifications
	CreateNotification(ctx context.Context, notification *domain.Notification) (bool, error)
	ListNotifications(ctx context.Context, userID int64) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID int64) (*domain.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error)

	// Admin moderation
	ListPendingAgents(ctx context.Context) ([]domain.PendingAgent, error)
	ReviewAgentVerification(ctx context.Context, params VerificationReviewParams) (*domain.AgentProfile, error)
	ListFlaggedLeads(ctx context.Context) ([]domain.FlaggedLead, error)
	ResolveFlag(ctx context.Context, params ResolveFlagParams) (*domain.LeadPurchase, error)
	GetSystemStats(ctx context.Context) (*domain.SystemStats, error)

	// Event outbox
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
	PrunePublishedOutbox(ctx context.Context, before time.Time) (int64, error)
}

// CreateUserParams describes a registration. AgentProfile is set for agents;
// AdminNotification is copied to every admin user in the same transaction.
type CreateUserParams struct {
	User              domain.User
	AgentProfile      *domain.AgentProfile
	AdminNotification *domain.Notification
	Exchange          string
}

// PurchaseLeadParams carries everything the purchase transaction writes.
type PurchaseLeadParams struct {
	AgentID            int64
	PropertyID         int64
	Price              decimal.Decimal
	PaymentDescription string
	SellerNotification domain.Notification
	Exchange           string
}

// SelectSubscriptionParams is a direct plan selection by an agent.
type SelectSubscriptionParams struct {
	AgentID int64
	Type    domain.SubscriptionType
	Price   decimal.Decimal
	EndDate time.Time
}

// WebhookActivationParams is a verified payment_intent.succeeded event.
type WebhookActivationParams struct {
	Provider        string
	EventID         string
	EventType       string
	Payload         []byte
	AgentID         int64
	PlanType        domain.SubscriptionType
	Months          int
	Amount          decimal.Decimal
	PaymentIntentID string
	Description     string
	Now             time.Time
	// Notification builds the agent notification once the new end date is known.
	Notification func(domain.Subscription) domain.Notification
	Exchange     string
}

// WebhookEventRecord is a verified webhook event that needs no further processing.
type WebhookEventRecord struct {
	Provider  string
	EventID   string
	EventType string
	Payload   []byte
}

// VerificationReviewParams is an admin decision on a pending agent.
type VerificationReviewParams struct {
	AgentUserID  int64
	Status       domain.VerificationStatus
	Note         string
	ReviewedAt   time.Time
	Notification domain.Notification
	Exchange     string
}

// ResolveFlagParams is an admin decision on an open flag. SellerNotification is
// only written when the listing is removed.
type ResolveFlagParams struct {
	LeadPurchaseID     int64
	Action             domain.FlagAction
	Reason             string
	AgentNotification  domain.Notification
	SellerNotification *domain.Notification
	Exchange           string
}

// OutboxMessage is a claimed event_outbox row.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}
