/**
 * @description
 * Session and role middleware. The session token is read from the session
 * cookie, or from an `Authorization: Bearer` header for non-browser clients.
 */

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tmasaiti/zimproperty/internal/app"
	"github.com/tmasaiti/zimproperty/internal/auth"
	"github.com/tmasaiti/zimproperty/internal/domain"
)

// UserContextKey is a custom type for the context key to avoid collisions.
type UserContextKey string

const sessionUserKey UserContextKey = "sessionUser"

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authHeader := r.Header.Get("Authorization")
	if token := strings.TrimPrefix(authHeader, "Bearer "); token != authHeader {
		return strings.TrimSpace(token)
	}
	return ""
}

// LoadSession resolves the session token, when present, to its user and
// stores it in the request context. Requests without a valid session pass
// through anonymously.
func (h *Handler) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := h.service.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, app.ErrNotAuthenticated) {
				writeServiceError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), sessionUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSessionUser retrieves the authenticated user from the request context.
func GetSessionUser(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(sessionUserKey).(*domain.User)
	return user, ok && user != nil
}

// RequireAuth rejects requests without a session.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSessionUser(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests without a session (401) or whose user role is
// not one of roles (403).
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetSessionUser(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			if _, ok := allowed[user.Role]; !ok {
				writeError(w, http.StatusForbidden, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionUser returns the context user. Routes using it sit behind RequireAuth
// or RequireRole.
func sessionUser(r *http.Request) *domain.User {
	user, _ := GetSessionUser(r.Context())
	return user
}
