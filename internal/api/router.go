/**
 * @description
 * This file sets up the HTTP router for the marketplace API using the go-chi/chi
 * router. It applies middleware for logging, panic recovery, timeouts, CORS and
 * session loading, and maps every `/api` route to its handler and role set.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: The routing library.
 * - github.com/go-chi/cors: Cross-origin handling for the browser frontend.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tmasaiti/zimproperty/internal/domain"
)

// NewRouter creates a new Chi router and registers the marketplace routes.
// Forwarded client addresses are honoured only when trustProxyHeaders is set,
// since the login throttle keys on the client address.
func NewRouter(h *Handler, allowedOrigins []string, trustProxyHeaders bool) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()

	// Setup middleware
	if trustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	seller := RequireRole(domain.RoleSeller)
	agent := RequireRole(domain.RoleAgent)
	agentOrAdmin := RequireRole(domain.RoleAgent, domain.RoleAdmin)
	admin := RequireRole(domain.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		// Signature-verified; never session authenticated.
		r.Post("/webhook", h.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(h.LoadSession)

			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.With(RequireAuth).Get("/user", h.CurrentUser)
			r.With(RequireAuth).Get("/user/agent-status", h.AgentStatus)

			r.With(seller).Post("/properties", h.CreateProperty)
			r.With(seller).Get("/properties/my-listings", h.MyListings)
			r.With(agentOrAdmin).Get("/properties", h.BrowseProperties)
			r.With(RequireAuth).Get("/properties/{id}", h.PropertyDetail)

			r.With(agent).Post("/leads/purchase", h.PurchaseLead)
			r.With(agent).Get("/leads/purchased", h.PurchasedLeads)
			r.With(agent).Patch("/leads/{id}", h.UpdateLead)

			r.With(agent).Post("/subscriptions", h.SelectSubscription)
			r.With(agent).Get("/subscriptions/current", h.CurrentSubscription)
			r.With(agent).Post("/create-subscription", h.CreateCheckout)

			r.With(RequireAuth).Post("/payments", h.TopUp)
			r.With(RequireAuth).Get("/payments/history", h.PaymentHistory)

			r.With(RequireAuth).Get("/notifications", h.ListNotifications)
			r.With(RequireAuth).Patch("/notifications/{id}", h.MarkNotificationRead)
			r.With(RequireAuth).Post("/notifications/read-all", h.MarkAllNotificationsRead)

			r.Route("/admin", func(r chi.Router) {
				r.Use(admin)
				r.Get("/agent-verifications", h.PendingAgents)
				r.Patch("/agent-verifications/{id}", h.ReviewAgentVerification)
				r.Get("/flagged-leads", h.FlaggedLeads)
				r.Patch("/flagged-leads/{id}", h.ReviewFlag)
				r.Get("/stats", h.Stats)
			})
		})
	})

	return r
}
