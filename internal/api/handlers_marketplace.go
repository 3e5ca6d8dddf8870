package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tmasaiti/zimproperty/internal/domain"
)

// parsePropertyFilter reads the browse query. The value "all" disables the
// type and location filters.
func parsePropertyFilter(query url.Values) (domain.PropertyFilter, string) {
	var filter domain.PropertyFilter

	if raw := strings.TrimSpace(query.Get("type")); raw != "" && raw != "all" {
		propertyType := domain.PropertyType(raw)
		if !propertyType.Valid() {
			return filter, "Invalid property type"
		}
		filter.Type = &propertyType
	}
	if raw := strings.TrimSpace(query.Get("location")); raw != "" && raw != "all" {
		filter.Location = &raw
	}
	for _, bound := range []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"minPrice", &filter.MinPrice},
		{"maxPrice", &filter.MaxPrice},
	} {
		raw := strings.TrimSpace(query.Get(bound.name))
		if raw == "" {
			continue
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return filter, "Invalid " + bound.name
		}
		*bound.dst = &value
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.PropertyStatus(raw)
		if !status.Valid() {
			return filter, "Invalid status"
		}
		filter.Status = &status
	}
	return filter, ""
}

func (h *Handler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePropertyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	property, err := h.service.CreateProperty(r.Context(), sessionUser(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, property)
}

func (h *Handler) MyListings(w http.ResponseWriter, r *http.Request) {
	properties, err := h.service.ListSellerProperties(r.Context(), sessionUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(properties))
}

func (h *Handler) BrowseProperties(w http.ResponseWriter, r *http.Request) {
	filter, problem := parsePropertyFilter(r.URL.Query())
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}

	properties, err := h.service.BrowseProperties(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(properties))
}

func (h *Handler) PropertyDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.service.GetPropertyDetail(r.Context(), sessionUser(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) PurchaseLead(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseLeadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lead, err := h.service.PurchaseLead(r.Context(), sessionUser(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

func (h *Handler) PurchasedLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.service.ListPurchasedLeads(r.Context(), sessionUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(leads))
}

func (h *Handler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var update domain.LeadUpdate
	if !decodeJSON(w, r, &update) {
		return
	}

	lead, err := h.service.UpdateLead(r.Context(), sessionUser(r), id, update)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
