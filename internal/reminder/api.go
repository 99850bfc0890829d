package reminder

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mercury-plus/platform/internal/shared/errors"
	"github.com/mercury-plus/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the reminder module
type Handler struct {
	service *Service
}

// NewHandler creates a new reminder handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes registers the reminder routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/reminders", func(r chi.Router) {
		r.Get("/", h.ListReminders)
		r.Post("/", h.CreateReminder)
		r.Get("/frequencies", h.ListFrequencies)

		r.Route("/{reminderID}", func(r chi.Router) {
			r.Get("/", h.GetReminder)
			r.Patch("/", h.UpdateReminder)
			r.Delete("/", h.DeleteReminder)

			r.Get("/schedule", h.GetReminderSchedule)
			r.Get("/refill", h.GetRefillPrediction)
			r.Post("/mark-taken", h.MarkTaken)
			r.Post("/undo-taken", h.UndoTaken)
			r.Post("/restock", h.Restock)
		})
	})

	// Aggregate timeline across all reminders
	r.Get("/schedule", h.GetSchedule)

	return r
}

// ListReminders lists all reminders in creation order
func (h *Handler) ListReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  reminders,
		"total": len(reminders),
	})
}

// CreateReminder creates a new reminder
func (h *Handler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	var req CreateReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	rem, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rem)
}

// ListFrequencies lists the supported frequencies with their defaults
func (h *Handler) ListFrequencies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data": Frequencies(),
	})
}

// GetReminder gets a reminder by ID
func (h *Handler) GetReminder(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "reminderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid reminder ID"))
		return
	}

	rem, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rem)
}

// UpdateReminder partially updates a reminder
func (h *Handler) UpdateReminder(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "reminderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid reminder ID"))
		return
	}

	var req UpdateReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	rem, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rem)
}

// DeleteReminder deletes a reminder. Deleting an already-absent reminder
// still returns 204.
func (h *Handler) DeleteReminder(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "reminderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid reminder ID"))
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetReminderSchedule returns the dose occurrences for one reminder on a
// date (default today).
func (h *Handler) GetReminderSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "reminderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid reminder ID"))
		return
	}

	date, err := h.dateParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	instances, err := h.service.ScheduleForDate(r.Context(), id, date)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date": date,
		"data": instances,
	})
}

// GetSchedule returns the aggregate timeline across all reminders for a
// date (default today), ordered by slot.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	date, err := h.dateParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	instances, err := h.service.ScheduleForAll(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date": date,
		"data": instances,
	})
}

// GetRefillPrediction returns the refill prediction for a reminder. An
// exhausted supply yields a null prediction, not an error.
func (h *Handler) GetRefillPrediction(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "reminderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid reminder ID"))
		return
	}

	prediction, err := h.service.Predict(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"prediction": prediction,
	})
}

// MarkTaken marks one dose occurrence as taken
func (h *Handler) MarkTaken(w http.ResponseWriter, r *http.Request) {
	id, date, slot, err := h.doseParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rem, err := h.service.MarkTaken(r.Context(), id, date, slot)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rem)
}

// UndoTaken reverts a taken dose occurrence
func (h *Handler) UndoTaken(w http.ResponseWriter, r *http.Request) {
	id, date, slot, err := h.doseParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rem, err := h.service.UndoTaken(r.Context(), id, date, slot)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rem)
}

// Restock applies a fulfillment restock to a reminder
func (h *Handler) Restock(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "reminderID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid reminder ID"))
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	rem, err := h.service.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rem)
}

// --- Helpers ---

// dateParam reads the optional ?date= query parameter, defaulting to today
func (h *Handler) dateParam(r *http.Request) (types.Date, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return types.DateOf(h.service.now()), nil
	}

	date, err := types.ParseDate(raw)
	if err != nil {
		return "", errors.Validation("validation failed", map[string]string{"date": err.Error()})
	}
	return date, nil
}

// doseParams parses the reminder ID and the dose identity from the body
func (h *Handler) doseParams(r *http.Request) (types.ID, types.Date, types.TimeSlot, error) {
	id, err := types.ParseID(chi.URLParam(r, "reminderID"))
	if err != nil {
		return "", "", "", errors.BadRequest("invalid reminder ID")
	}

	var req MarkDoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", "", "", errors.BadRequest("invalid request body")
	}

	details := map[string]string{}
	date, err := types.ParseDate(req.Date)
	if err != nil {
		details["date"] = err.Error()
	}
	slot, err := types.ParseTimeSlot(req.Slot)
	if err != nil {
		details["slot"] = err.Error()
	}
	if len(details) > 0 {
		return "", "", "", errors.Validation("validation failed", details)
	}

	return id, date, slot, nil
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
