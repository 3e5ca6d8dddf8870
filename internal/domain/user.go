/**
 * @description
 * Core identity models for the marketplace: platform users, the agent-only
 * profile that carries verification state and prepaid balance, and the
 * server-side session that backs the login cookie.
 *
 * @notes
 * - Money is held as shopspring/decimal values and stored as NUMERIC(14,2).
 * - User.Password never leaves the service; it is tagged json:"-".
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is the marketplace role a user acts under.
type Role string

const (
	RoleSeller Role = "seller"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSeller, RoleAgent, RoleAdmin:
		return true
	default:
		return false
	}
}

// VerificationStatus tracks the admin review of an agent account.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// User maps to the `users` table.
type User struct {
	ID                int64     `json:"id"`
	Username          string    `json:"username"`
	Password          string    `json:"-"`
	Email             string    `json:"email"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	Phone             string    `json:"phone"`
	Role              Role      `json:"role"`
	CreatedAt         time.Time `json:"createdAt"`
	WhatsappPreferred bool      `json:"whatsappPreferred"`
}

// FullName joins the first and last name.
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// AgentProfile maps to the `agent_profiles` table (1:1 with an agent user).
type AgentProfile struct {
	ID                 int64              `json:"id"`
	UserID             int64              `json:"userId"`
	AgencyName         string             `json:"agencyName"`
	LicenseDocument    string             `json:"licenseDocument"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	VerificationDate   *time.Time         `json:"verificationDate"`
	VerificationNote   *string            `json:"verificationNote"`
	Rating             *int               `json:"rating"`
	Balance            decimal.Decimal    `json:"balance"`
}

// PendingAgent is an agent profile awaiting review, joined with its user.
type PendingAgent struct {
	AgentProfile
	User User `json:"user"`
}

// Session is a server-side login session.
type Session struct {
	ID        uuid.UUID `json:"id"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is no longer usable at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RegisterRequest is the DTO accepted by POST /api/register.
type RegisterRequest struct {
	Username          string `json:"username"`
	Password          string `json:"password"`
	ConfirmPassword   string `json:"confirmPassword"`
	Email             string `json:"email"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Phone             string `json:"phone"`
	Role              Role   `json:"role"`
	WhatsappPreferred bool   `json:"whatsappPreferred"`
	AgencyName        string `json:"agencyName"`
	LicenseDocument   string `json:"licenseDocument"`
}

// LoginRequest is the DTO accepted by POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
