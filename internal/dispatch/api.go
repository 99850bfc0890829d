package dispatch

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler provides HTTP handlers for the dispatch module
type Handler struct {
	service *Service
	source  DoseSource
	window  time.Duration
}

// NewHandler creates a new dispatch handler
func NewHandler(service *Service, source DoseSource, window time.Duration) *Handler {
	return &Handler{service: service, source: source, window: window}
}

// Routes registers the dispatch routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/due", h.ListDue)
	r.Get("/alerts", h.ListAlerts)
	r.Get("/stats", h.GetStats)

	return r
}

// ListDue lists the dose occurrences inside the lookahead window
func (h *Handler) ListDue(w http.ResponseWriter, r *http.Request) {
	window := h.window
	if v := r.URL.Query().Get("window"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid window duration"})
			return
		}
		window = parsed
	}

	due, err := h.source.DueWithin(r.Context(), window)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"window": window.String(),
		"data":   due,
		"total":  len(due),
	})
}

// ListAlerts lists alerts dispatched since startup
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.service.Alerts()
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].DueAt.Before(alerts[j].DueAt) })

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  alerts,
		"total": len(alerts),
	})
}

// GetStats returns dispatcher statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.GetStats())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
