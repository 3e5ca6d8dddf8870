package api

import (
	"io"
	"net/http"

	"github.com/tmasaiti/zimproperty/internal/domain"
	"github.com/tmasaiti/zimproperty/pkg/stripeclient"
)

const maxWebhookBytes = 64 << 10

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	clientSecret, err := h.service.CreateCheckout(r.Context(), sessionUser(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"clientSecret": clientSecret})
}

// Webhook handles payment processor callbacks. The raw body is needed for
// signature verification, so it is read before any decoding.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Webhook Error: failed to read body")
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get(stripeclient.SignatureHeader))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response := map[string]bool{"received": true}
	if result.Duplicate {
		response["duplicate"] = true
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) SelectSubscription(w http.ResponseWriter, r *http.Request) {
	var req domain.SelectSubscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sub, err := h.service.SelectSubscription(r.Context(), sessionUser(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *Handler) CurrentSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.CurrentSubscription(r.Context(), sessionUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	var req domain.TopUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	payment, err := h.service.TopUp(r.Context(), sessionUser(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (h *Handler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.PaymentHistory(r.Context(), sessionUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(payments))
}
