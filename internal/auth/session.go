package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionTTL is the fixed lifetime of a login session.
const SessionTTL = 30 * 24 * time.Hour

// SessionCookieName is the cookie that carries the signed session token.
const SessionCookieName = "zimproperty.sid"

const sessionIssuer = "zimproperty"

var ErrInvalidSessionToken = errors.New("invalid session token")

// SessionClaims binds a server-side session id to its user.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionSigner signs and verifies session tokens with an HMAC secret.
type SessionSigner struct {
	secret []byte
}

func NewSessionSigner(secret string) *SessionSigner {
	return &SessionSigner{secret: []byte(secret)}
}

// Sign issues an HS256 token for the session.
func (s *SessionSigner) Sign(sessionID uuid.UUID, userID int64, issuedAt, expiresAt time.Time) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID.String(),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies the token signature and expiry and returns the session id.
func (s *SessionSigner) Parse(tokenString string) (uuid.UUID, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidSessionToken
	}

	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, ErrInvalidSessionToken
	}
	return sessionID, nil
}
