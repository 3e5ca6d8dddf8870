package domain

import "time"

// EventExchange is the default topic exchange marketplace events are published to.
const EventExchange = "zimproperty.events"

// Routing keys for outbox events.
const (
	RoutingPropertyCreated       = "property.created"
	RoutingPropertyRemoved       = "property.removed"
	RoutingLeadPurchased         = "lead.purchased"
	RoutingAgentRegistered       = "agent.registered"
	RoutingAgentVerification     = "agent.verification.updated"
	RoutingSubscriptionActivated = "subscription.activated"
)

type PropertyCreatedEvent struct {
	PropertyID int64        `json:"property_id"`
	SellerID   int64        `json:"seller_id"`
	Type       PropertyType `json:"type"`
	Location   string       `json:"location"`
	Price      string       `json:"price"`
	CreatedAt  time.Time    `json:"created_at"`
}

type PropertyRemovedEvent struct {
	PropertyID int64  `json:"property_id"`
	SellerID   int64  `json:"seller_id"`
	Reason     string `json:"reason"`
}

type LeadPurchasedEvent struct {
	PurchaseID int64  `json:"purchase_id"`
	AgentID    int64  `json:"agent_id"`
	PropertyID int64  `json:"property_id"`
	SellerID   int64  `json:"seller_id"`
	Price      string `json:"price"`
}

type AgentRegisteredEvent struct {
	UserID     int64  `json:"user_id"`
	AgencyName string `json:"agency_name"`
	Email      string `json:"email"`
}

type AgentVerificationEvent struct {
	UserID int64              `json:"user_id"`
	Status VerificationStatus `json:"status"`
	Note   string             `json:"note,omitempty"`
}

type SubscriptionActivatedEvent struct {
	SubscriptionID int64            `json:"subscription_id"`
	AgentID        int64            `json:"agent_id"`
	Type           SubscriptionType `json:"type"`
	EndDate        time.Time        `json:"end_date"`
	PaymentIntent  string           `json:"payment_intent"`
}

// OutboxEvent is an event staged in the same transaction as the write that produced it.
type OutboxEvent struct {
	Exchange   string
	RoutingKey string
	Payload    interface{}
}
