package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PropertyType classifies a listing.
type PropertyType string

const (
	PropertyResidential PropertyType = "residential"
	PropertyCommercial  PropertyType = "commercial"
	PropertyLand        PropertyType = "land"
	PropertyApartment   PropertyType = "apartment"
)

func (t PropertyType) Valid() bool {
	switch t {
	case PropertyResidential, PropertyCommercial, PropertyLand, PropertyApartment:
		return true
	default:
		return false
	}
}

// PropertyStatus is the lifecycle state of a listing.
type PropertyStatus string

const (
	PropertyPending  PropertyStatus = "pending"
	PropertyActive   PropertyStatus = "active"
	PropertyExpired  PropertyStatus = "expired"
	PropertyArchived PropertyStatus = "archived"
)

func (s PropertyStatus) Valid() bool {
	switch s {
	case PropertyPending, PropertyActive, PropertyExpired, PropertyArchived:
		return true
	default:
		return false
	}
}

// ListingLifetime is how long a listing stays active after creation.
const ListingLifetime = 30 * 24 * time.Hour

// Property maps to the `properties` table. A property is the "lead" agents buy.
type Property struct {
	ID          int64               `json:"id"`
	SellerID    int64               `json:"sellerId"`
	Type        PropertyType        `json:"type"`
	Location    string              `json:"location"`
	Address     string              `json:"address"`
	Price       decimal.Decimal     `json:"price"`
	Size        decimal.NullDecimal `json:"size"`
	Description string              `json:"description"`
	Photos      []string            `json:"photos"`
	Status      PropertyStatus      `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
	ExpiresAt   *time.Time          `json:"expiresAt"`
	IsVerified  bool                `json:"isVerified"`
}

// SellerContact is the seller block attached to a property detail response.
type SellerContact struct {
	ID                int64  `json:"id"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	WhatsappPreferred bool   `json:"whatsappPreferred"`
}

// MaskedContactValue replaces seller contact fields the caller has not unlocked.
const MaskedContactValue = "********"

// PropertyDetail is a property with its seller contact block.
type PropertyDetail struct {
	Property
	Seller SellerContact `json:"seller"`
}

// PropertyFilter narrows the agent browse query. Nil fields are not applied.
type PropertyFilter struct {
	Type     *PropertyType
	Location *string
	MinPrice *decimal.Decimal // inclusive
	MaxPrice *decimal.Decimal // exclusive
	Status   *PropertyStatus
}

// CreatePropertyRequest is the DTO accepted by POST /api/properties.
type CreatePropertyRequest struct {
	Type        PropertyType     `json:"type"`
	Location    string           `json:"location"`
	Address     string           `json:"address"`
	Price       *decimal.Decimal `json:"price"`
	Size        *decimal.Decimal `json:"size"`
	Description string           `json:"description"`
	Photos      []string         `json:"photos"`
}
