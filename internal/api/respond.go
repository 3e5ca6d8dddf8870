package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tmasaiti/zimproperty/internal/app"
	"github.com/tmasaiti/zimproperty/internal/store"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Message string           `json:"message"`
	Errors  []app.FieldError `json:"errors,omitempty"`
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("level=warn component=api msg=\"failed to encode response\" err=%v", err)
		}
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return 0, false
	}
	return id, true
}

type errorMapping struct {
	target  error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{app.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid username or password"},
	{app.ErrNotAuthenticated, http.StatusUnauthorized, "Not authenticated"},
	{app.ErrNotLeadOwner, http.StatusForbidden, "You can only update your own leads"},
	{app.ErrNotAgent, http.StatusForbidden, "Unauthorized"},
	{app.ErrUnlimitedRequiresCheckout, http.StatusBadRequest, "The unlimited plan must be purchased through checkout"},
	{app.ErrPaymentsNotConfigured, http.StatusServiceUnavailable, "Payment processing is not configured"},

	{store.ErrUsernameTaken, http.StatusBadRequest, "Username already exists"},
	{store.ErrEmailTaken, http.StatusBadRequest, "Email already exists"},
	{store.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{store.ErrAgentProfileNotFound, http.StatusNotFound, "Agent profile not found"},
	{store.ErrAgentNotVerified, http.StatusForbidden, "Agent account is not verified"},
	{store.ErrInsufficientBalance, http.StatusBadRequest, "Insufficient balance"},
	{store.ErrPropertyNotFound, http.StatusNotFound, "Property not found"},
	{store.ErrPropertyUnavailable, http.StatusBadRequest, "Property is not available"},
	{store.ErrLeadNotFound, http.StatusNotFound, "Lead not found"},
	{store.ErrLeadAlreadyPurchased, http.StatusBadRequest, "You have already purchased this lead"},
	{store.ErrVerificationAlreadyReviewed, http.StatusBadRequest, "Agent verification has already been reviewed"},
	{store.ErrFlagNotOpen, http.StatusBadRequest, "Flag is not open"},
	{store.ErrNotificationNotFound, http.StatusNotFound, "Notification not found"},
	{store.ErrSubscriptionNotFound, http.StatusNotFound, "No active subscription found"},
}

// writeServiceError maps an app or store error to its HTTP response.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *app.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: validationErr.Message, Errors: validationErr.Fields})
		return
	}

	var rateErr *app.RateLimitError
	if errors.As(err, &rateErr) {
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, "Too many attempts. Please try again later.")
		return
	}

	var signatureErr *app.WebhookSignatureError
	if errors.As(err, &signatureErr) {
		writeError(w, http.StatusBadRequest, "Webhook Error: "+signatureErr.Error())
		return
	}

	var providerErr *app.PaymentProviderError
	if errors.As(err, &providerErr) {
		writeError(w, http.StatusInternalServerError, providerErr.Error())
		return
	}

	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			writeError(w, mapping.status, mapping.message)
			return
		}
	}

	log.Printf("level=error component=api msg=\"unhandled error\" method=%s path=%s err=%v", r.Method, r.URL.Path, err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
