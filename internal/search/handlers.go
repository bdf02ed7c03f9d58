package search

import (
	"encoding/json"
	"net/http"

	"github.com/medicsearch/medic-search/internal/domain"
	"github.com/medicsearch/medic-search/internal/latency"

	apperrors "github.com/medicsearch/medic-search/internal/pkg/errors"
)

// Handler provides HTTP handlers for search operations.
type Handler struct {
	svc     *Service
	health  *HealthChecker
	monitor *latency.Monitor
	version string
}

// NewHandler creates a new search handler.
func NewHandler(svc *Service, health *HealthChecker, monitor *latency.Monitor, version string) *Handler {
	return &Handler{
		svc:     svc,
		health:  health,
		monitor: monitor,
		version: version,
	}
}

// SearchRequest is the JSON request body for search.
type SearchRequest struct {
	Query          string `json:"query"`
	Limit          int    `json:"limit,omitempty"`
	JurisdictionID string `json:"jurisdiction_id,omitempty"`
	SourceState    string `json:"source_state,omitempty"`
	CallerTier     string `json:"caller_tier,omitempty"`
}

// RegisterRoutes registers all search routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/search", h.HandleSearch)
	mux.HandleFunc("GET /v1/health", h.HandleHealth)
	mux.HandleFunc("GET /v1/latency", h.HandleLatency)
}

// HandleSearch handles POST /v1/search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, apperrors.InvalidRequestError("invalid request body"))
		return
	}

	resp, err := h.svc.Search(r.Context(), Request{
		Query: req.Query,
		Limit: req.Limit,
		Filters: domain.Filters{
			JurisdictionID: req.JurisdictionID,
			SourceState:    req.SourceState,
		},
		CallerTier: callerTier(req.CallerTier),
	})
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth handles GET /v1/health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.health.Check(r.Context())

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, struct {
		Health
		Version string `json:"version"`
	}{Health: health, Version: h.version})
}

// HandleLatency handles GET /v1/latency.
func (h *Handler) HandleLatency(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Report())
}

// callerTier maps the request value to a known tier, defaulting to free.
func callerTier(s string) domain.CallerTier {
	if s == string(domain.CallerPaid) {
		return domain.CallerPaid
	}
	return domain.CallerFree
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignore encoding errors - headers already sent
	_ = json.NewEncoder(w).Encode(v)
}
