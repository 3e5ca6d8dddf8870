package api

import (
	"net/http"

	"github.com/tmasaiti/zimproperty/internal/app"
	"github.com/tmasaiti/zimproperty/internal/domain"
)

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.service.ListNotifications(r.Context(), sessionUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(notifications))
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	notification, err := h.service.MarkNotificationRead(r.Context(), sessionUser(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notification)
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.service.MarkAllNotificationsRead(r.Context(), sessionUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (h *Handler) PendingAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.service.PendingAgents(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(agents))
}

func (h *Handler) ReviewAgentVerification(w http.ResponseWriter, r *http.Request) {
	agentUserID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.VerificationReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.service.ReviewAgentVerification(r.Context(), sessionUser(r), agentUserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) FlaggedLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.service.FlaggedLeads(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(leads))
}

func (h *Handler) ReviewFlag(w http.ResponseWriter, r *http.Request) {
	leadID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.ReviewFlagRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lead, err := h.service.ReviewFlag(r.Context(), sessionUser(r), leadID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
