package reminder

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func newTestHandler(t *testing.T, now time.Time) *Handler {
	t.Helper()

	repo, err := NewMemoryRepository(filepath.Join(t.TempDir(), "reminders.json"))
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}

	svc := NewService(repo, WithClock(func() time.Time { return now }))
	return NewHandler(svc)
}

func doRequest(t *testing.T, h *Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestAPICreateAndGet(t *testing.T) {
	h := newTestHandler(t, at("2026-03-01", "07:00"))

	rec := doRequest(t, h, http.MethodPost, "/reminders", metforminRequest())
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created Reminder
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if created.MedicineName != "Metformin" || created.QuantityRemaining != 60 {
		t.Errorf("Unexpected created reminder: %+v", created)
	}

	rec = doRequest(t, h, http.MethodGet, "/reminders/"+created.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/reminders", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var list struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("Expected 1 reminder, got %d", list.Total)
	}
}

func TestAPICreateInvalid(t *testing.T) {
	h := newTestHandler(t, at("2026-03-01", "07:00"))

	tests := []struct {
		name string
		body any
		code string
	}{
		{
			name: "wrong slot count",
			body: CreateReminderRequest{
				MedicineName: "Metformin",
				Dosage:       "500mg",
				Frequency:    "twice_daily",
				Times:        []string{"08:00"},
				StartDate:    "2026-03-01",
				Quantity:     60,
			},
			code: "INVALID_SCHEDULE",
		},
		{
			name: "missing fields",
			body: CreateReminderRequest{Frequency: "daily", StartDate: "2026-03-01", Quantity: 1},
			code: "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/reminders", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rec.Code)
			}
			var resp struct {
				Code string `json:"code"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, resp.Code)
			}
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/reminders", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestAPIMarkAndUndo(t *testing.T) {
	h := newTestHandler(t, at("2026-03-15", "09:00"))

	rec := doRequest(t, h, http.MethodPost, "/reminders", metforminRequest())
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	var created Reminder
	json.NewDecoder(rec.Body).Decode(&created)

	base := "/reminders/" + created.ID.String()
	mark := MarkDoseRequest{Date: "2026-03-15", Slot: "08:00"}

	rec = doRequest(t, h, http.MethodPost, base+"/mark-taken", mark)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated Reminder
	json.NewDecoder(rec.Body).Decode(&updated)
	if updated.QuantityRemaining != 59 {
		t.Errorf("Expected 59 remaining, got %d", updated.QuantityRemaining)
	}

	rec = doRequest(t, h, http.MethodPost, base+"/undo-taken", mark)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	json.NewDecoder(rec.Body).Decode(&updated)
	if updated.QuantityRemaining != 60 {
		t.Errorf("Expected 60 remaining after undo, got %d", updated.QuantityRemaining)
	}

	rec = doRequest(t, h, http.MethodPost, base+"/mark-taken", MarkDoseRequest{Date: "2026-03-15", Slot: "09:30"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown slot, got %d", rec.Code)
	}
}

func TestAPISchedule(t *testing.T) {
	h := newTestHandler(t, at("2026-03-15", "06:00"))

	rec := doRequest(t, h, http.MethodPost, "/reminders", metforminRequest())
	var created Reminder
	json.NewDecoder(rec.Body).Decode(&created)

	t.Run("per reminder with explicit date", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet,
			"/reminders/"+created.ID.String()+"/schedule?date=2026-03-15", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var resp struct {
			Data []ScheduleInstance `json:"data"`
		}
		json.NewDecoder(rec.Body).Decode(&resp)
		if len(resp.Data) != 2 {
			t.Errorf("Expected 2 instances, got %d", len(resp.Data))
		}
	})

	t.Run("aggregate defaults to today", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/schedule", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var resp struct {
			Date string             `json:"date"`
			Data []ScheduleInstance `json:"data"`
		}
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Date != "2026-03-15" {
			t.Errorf("Expected date 2026-03-15, got %s", resp.Date)
		}
		if len(resp.Data) != 2 {
			t.Errorf("Expected 2 instances, got %d", len(resp.Data))
		}
	})

	t.Run("bad date parameter", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/schedule?date=15-03-2026", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestAPIDelete(t *testing.T) {
	h := newTestHandler(t, at("2026-03-15", "09:00"))

	rec := doRequest(t, h, http.MethodPost, "/reminders", metforminRequest())
	var created Reminder
	json.NewDecoder(rec.Body).Decode(&created)

	rec = doRequest(t, h, http.MethodDelete, "/reminders/"+created.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}

	// Idempotent: deleting again is still 204.
	rec = doRequest(t, h, http.MethodDelete, "/reminders/"+created.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for repeat delete, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/reminders/"+created.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
}

func TestAPIFrequencies(t *testing.T) {
	h := newTestHandler(t, at("2026-03-15", "09:00"))

	rec := doRequest(t, h, http.MethodGet, "/reminders/frequencies", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Data []FrequencyInfo `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Data) != 4 {
		t.Errorf("Expected 4 frequencies, got %d", len(resp.Data))
	}
}

func TestAPIRefill(t *testing.T) {
	h := newTestHandler(t, at("2026-03-15", "09:00"))

	rec := doRequest(t, h, http.MethodPost, "/reminders", metforminRequest())
	var created Reminder
	json.NewDecoder(rec.Body).Decode(&created)

	rec = doRequest(t, h, http.MethodGet, "/reminders/"+created.ID.String()+"/refill", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Prediction *RefillPrediction `json:"prediction"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Prediction == nil || resp.Prediction.DaysRemaining != 30 {
		t.Errorf("Expected 30 days remaining, got %+v", resp.Prediction)
	}
}

func TestAPIRestock(t *testing.T) {
	h := newTestHandler(t, at("2026-03-15", "09:00"))

	rec := doRequest(t, h, http.MethodPost, "/reminders", metforminRequest())
	var created Reminder
	json.NewDecoder(rec.Body).Decode(&created)

	rec = doRequest(t, h, http.MethodPost, "/reminders/"+created.ID.String()+"/restock",
		map[string]int{"quantity": 90})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var updated Reminder
	json.NewDecoder(rec.Body).Decode(&updated)
	if updated.Quantity != 90 || updated.QuantityRemaining != 90 {
		t.Errorf("Expected 90/90 after restock, got %d/%d", updated.Quantity, updated.QuantityRemaining)
	}
}
