package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mercury-plus/platform/internal/shared/events"
	"github.com/mercury-plus/platform/internal/shared/types"
)

// fakeSource records the subscription patterns a subscriber registers
type fakeSource struct {
	patterns []string
}

func (f *fakeSource) Subscribe(ctx context.Context, pattern string, handler events.Handler) error {
	f.patterns = append(f.patterns, pattern)
	return nil
}

func doseTakenEvent(reminderID, patientID types.ID) events.Event {
	return events.NewEvent("dose.taken", "reminder-engine", map[string]any{
		"reminder_id":        reminderID,
		"date":               types.Date("2026-03-15"),
		"slot":               types.TimeSlot("08:00"),
		"quantity_remaining": 59,
	}).WithActor(patientID, "patient")
}

func TestSubscriberStart(t *testing.T) {
	source := &fakeSource{}
	sub := NewSubscriber(NewLog(), source)

	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(source.patterns) != 2 {
		t.Fatalf("Expected 2 subscriptions, got %d", len(source.patterns))
	}
	if source.patterns[0] != "reminder.*" || source.patterns[1] != "dose.*" {
		t.Errorf("Unexpected patterns: %v", source.patterns)
	}
}

func TestHandleEventProjects(t *testing.T) {
	log := NewLog()
	sub := NewSubscriber(log, &fakeSource{})

	reminderID := types.NewID()
	patientID := types.NewID()
	if err := sub.handleEvent(context.Background(), doseTakenEvent(reminderID, patientID)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	entries := log.List("", 10)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}

	e := entries[0]
	if e.Action != "dose.taken" {
		t.Errorf("Expected dose.taken, got %s", e.Action)
	}
	if e.ReminderID != reminderID {
		t.Errorf("Expected reminder %s, got %s", reminderID, e.ReminderID)
	}
	if e.PatientID != patientID || e.ActorType != "patient" {
		t.Errorf("Expected patient actor, got %s/%s", e.PatientID, e.ActorType)
	}
	if e.Date != "2026-03-15" || e.Slot != "08:00" {
		t.Errorf("Expected 2026-03-15 08:00, got %s %s", e.Date, e.Slot)
	}
}

func TestHandleEventReplayedFromStream(t *testing.T) {
	log := NewLog()
	sub := NewSubscriber(log, &fakeSource{})

	// An event read back from the stream has been through JSON, so its
	// data fields arrive as plain strings.
	reminderID := types.NewID()
	raw, err := json.Marshal(doseTakenEvent(reminderID, types.NewID()))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var replayed events.Event
	if err := json.Unmarshal(raw, &replayed); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := sub.handleEvent(context.Background(), replayed); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	entries := log.List(reminderID, 10)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry for the reminder, got %d", len(entries))
	}
	if entries[0].Slot != "08:00" {
		t.Errorf("Expected slot 08:00, got %s", entries[0].Slot)
	}
}

func TestHandleEventSkipsNonDomainEvents(t *testing.T) {
	log := NewLog()
	sub := NewSubscriber(log, &fakeSource{})

	if err := sub.handleEvent(context.Background(), events.NewEvent("startup", "platform", nil)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if log.Len() != 0 {
		t.Errorf("Expected empty log, got %d entries", log.Len())
	}
}

func TestLogOrderAndFilter(t *testing.T) {
	log := NewLog()
	first := types.NewID()
	second := types.NewID()

	log.Append(Entry{ID: types.NewID(), Action: "reminder.created", ReminderID: first})
	log.Append(Entry{ID: types.NewID(), Action: "dose.taken", ReminderID: first})
	log.Append(Entry{ID: types.NewID(), Action: "reminder.created", ReminderID: second})

	all := log.List("", 10)
	if len(all) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(all))
	}
	if all[0].ReminderID != second {
		t.Error("Expected newest entry first")
	}

	filtered := log.List(first, 10)
	if len(filtered) != 2 {
		t.Fatalf("Expected 2 entries for first reminder, got %d", len(filtered))
	}
	if filtered[0].Action != "dose.taken" {
		t.Errorf("Expected dose.taken first, got %s", filtered[0].Action)
	}

	limited := log.List("", 1)
	if len(limited) != 1 || limited[0].ReminderID != second {
		t.Errorf("Expected only the newest entry, got %+v", limited)
	}
}

func TestLogEviction(t *testing.T) {
	log := &Log{capacity: 2}

	log.Append(Entry{Action: "reminder.created"})
	log.Append(Entry{Action: "dose.taken"})
	log.Append(Entry{Action: "dose.undone"})

	if log.Len() != 2 {
		t.Fatalf("Expected 2 retained entries, got %d", log.Len())
	}
	entries := log.List("", 10)
	if entries[0].Action != "dose.undone" || entries[1].Action != "dose.taken" {
		t.Errorf("Expected oldest entry evicted, got %+v", entries)
	}
}

func TestListEntriesEndpoint(t *testing.T) {
	log := NewLog()
	reminderID := types.NewID()
	log.Append(Entry{ID: types.NewID(), Action: "reminder.created", ReminderID: reminderID})
	log.Append(Entry{ID: types.NewID(), Action: "dose.taken", ReminderID: reminderID})

	handler := NewHandler(log)
	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	t.Run("list all", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}

		var body struct {
			Data  []Entry `json:"data"`
			Total int     `json:"total"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if body.Total != 2 || body.Data[0].Action != "dose.taken" {
			t.Errorf("Expected 2 entries newest first, got %+v", body)
		}
	})

	t.Run("filter by reminder", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/?reminder_id=" + reminderID.String() + "&limit=1")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Total int `json:"total"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if body.Total != 1 {
			t.Errorf("Expected 1 entry, got %d", body.Total)
		}
	})

	t.Run("invalid reminder id", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/?reminder_id=not-a-uuid")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/?limit=0")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", resp.StatusCode)
		}
	})
}
