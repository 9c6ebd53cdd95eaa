// Package api provides HTTP endpoints for quota inspection: the aggregated
// subscription usage view and the combined project quota.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const maxOrgIDLen = 255

// Handler provides HTTP endpoints for quota inspection
type Handler struct {
	config Config
}

// NewHandler creates a usage API handler
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Handler{config: config}, nil
}

// Routes returns a chi router exposing the usage endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/usage", h.GetUsage)
	r.Get("/quota/projects", h.GetProjectQuota)
	return r
}

// GetUsage returns the organization's aggregated subscription usage
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.organization(w, r)
	if !ok {
		return
	}

	usage, err := h.config.Manager.GetSubscriptionUsage(r.Context(), orgID)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to get usage: %w", err), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, usage)
}

// GetProjectQuota returns total project slots across both tiers
func (h *Handler) GetProjectQuota(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.organization(w, r)
	if !ok {
		return
	}

	quota, err := h.config.Manager.GetCombinedProjectQuota(r.Context(), orgID)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to get project quota: %w", err), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, quota)
}

func (h *Handler) organization(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID := h.config.GetOrganizationID(r)
	if orgID == "" {
		h.handleError(w, r, fmt.Errorf("organization not found"), http.StatusUnauthorized)
		return "", false
	}
	if len(orgID) > maxOrgIDLen {
		h.handleError(w, r, fmt.Errorf("invalid organization id"), http.StatusBadRequest)
		return "", false
	}
	return orgID, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, code int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}
	http.Error(w, err.Error(), code)
}
