package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/mercury-plus/platform/internal/reminder"
	"github.com/mercury-plus/platform/internal/shared/types"
)

// fakeRestocker records the restocks the bridge applies
type fakeRestocker struct {
	reminders []reminder.Reminder
	restocked map[types.ID]int
}

func (f *fakeRestocker) FindByMedicine(ctx context.Context, medicineName string) ([]reminder.Reminder, error) {
	var matched []reminder.Reminder
	for _, r := range f.reminders {
		if r.MedicineName == medicineName {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

func (f *fakeRestocker) Restock(ctx context.Context, id types.ID, quantity int) (*reminder.Reminder, error) {
	if f.restocked == nil {
		f.restocked = make(map[types.ID]int)
	}
	f.restocked[id] = quantity
	return nil, nil
}

func TestBridgeApply(t *testing.T) {
	tracked := reminder.Reminder{ID: types.NewID(), MedicineName: "Metformin"}
	other := reminder.Reminder{ID: types.NewID(), MedicineName: "Lisinopril"}

	restocker := &fakeRestocker{reminders: []reminder.Reminder{tracked, other}}
	bridge := NewBridge(nil, restocker)

	event := RestockEvent{
		OrderID:      "ord-1",
		Timestamp:    time.Now(),
		MedicineName: "Metformin",
		Quantity:     90,
	}
	bridge.apply(context.Background(), event)

	if got := restocker.restocked[tracked.ID]; got != 90 {
		t.Errorf("Expected restock of 90 for tracked reminder, got %d", got)
	}
	if _, ok := restocker.restocked[other.ID]; ok {
		t.Error("Expected no restock for a different medicine")
	}
}

func TestBridgeIgnoresUntracked(t *testing.T) {
	restocker := &fakeRestocker{}
	bridge := NewBridge(nil, restocker)

	bridge.apply(context.Background(), RestockEvent{MedicineName: "Aspirin", Quantity: 30})
	if len(restocker.restocked) != 0 {
		t.Errorf("Expected no restocks, got %d", len(restocker.restocked))
	}
}

func TestBridgeIgnoresNonPositiveQuantity(t *testing.T) {
	tracked := reminder.Reminder{ID: types.NewID(), MedicineName: "Metformin"}
	restocker := &fakeRestocker{reminders: []reminder.Reminder{tracked}}
	bridge := NewBridge(nil, restocker)

	bridge.apply(context.Background(), RestockEvent{MedicineName: "Metformin", Quantity: 0})
	if len(restocker.restocked) != 0 {
		t.Errorf("Expected no restocks for zero quantity, got %d", len(restocker.restocked))
	}
}
