/**
 * @description
 * HTTP handlers for the marketplace API. Handlers decode and shape requests,
 * call into app.Service and map its errors to responses; they hold no
 * business rules of their own.
 *
 * @dependencies
 * - internal/app: The marketplace service.
 * - internal/auth: Session cookie name and lifetime.
 */

package api

import (
	"log"
	"net"
	"net/http"
	"time"

	"github.com/tmasaiti/zimproperty/internal/app"
	"github.com/tmasaiti/zimproperty/internal/auth"
	"github.com/tmasaiti/zimproperty/internal/domain"
)

// Handler holds the dependencies for the HTTP handlers.
type Handler struct {
	service      *app.Service
	secureCookie bool
}

// NewHandler creates a new Handler. secureCookie marks the session cookie
// Secure and should be set in production.
func NewHandler(service *app.Service, secureCookie bool) *Handler {
	return &Handler{service: service, secureCookie: secureCookie}
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token *app.SessionToken) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token.Token,
		Path:     "/",
		Expires:  token.ExpiresAt,
		MaxAge:   int(time.Until(token.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Register creates an account and logs the new user in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	token, err := h.service.StartSession(r.Context(), user.ID)
	if err != nil {
		// The account exists; the client can still log in explicitly.
		log.Printf("level=error component=api msg=\"failed to start session after registration\" user_id=%d err=%v", user.ID, err)
	} else {
		h.setSessionCookie(w, token)
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := h.service.Login(r.Context(), req, clientKey(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionUser(r))
}

func (h *Handler) AgentStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.AgentStatus(r.Context(), sessionUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.VerificationStatus{"status": status})
}
