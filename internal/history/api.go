package history

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mercury-plus/platform/internal/shared/types"
)

const defaultListLimit = 100

// Handler provides HTTP handlers for the adherence history
type Handler struct {
	log *Log
}

// NewHandler creates a new history handler
func NewHandler(log *Log) *Handler {
	return &Handler{log: log}
}

// Routes registers the history routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListEntries)

	return r
}

// ListEntries lists history entries, newest first
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	var reminderID types.ID
	if v := r.URL.Query().Get("reminder_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid reminder_id"})
			return
		}
		reminderID = id
	}

	entries := h.log.List(reminderID, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"total": len(entries),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
