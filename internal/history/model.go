package history

import (
	"sync"
	"time"

	"github.com/mercury-plus/platform/internal/shared/types"
)

// Entry is one recorded adherence action, projected from a domain event.
type Entry struct {
	ID         types.ID       `json:"id"`
	Action     string         `json:"action"`
	ReminderID types.ID       `json:"reminder_id,omitempty"`
	PatientID  types.ID       `json:"patient_id,omitempty"`
	ActorType  string         `json:"actor_type,omitempty"`
	Date       types.Date     `json:"date,omitempty"`
	Slot       types.TimeSlot `json:"slot,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Details    map[string]any `json:"details,omitempty"`
}

// defaultCapacity bounds the in-memory log; the oldest entries are
// evicted first. The durable history stays in the event stream.
const defaultCapacity = 10000

// Log is a bounded, append-only adherence history read model.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

// NewLog creates an empty history log
func NewLog() *Log {
	return &Log{capacity: defaultCapacity}
}

// Append records an entry, evicting the oldest when the log is full
func (l *Log) Append(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
}

// List returns up to limit entries, newest first, optionally filtered
// by reminder.
func (l *Log) List(reminderID types.ID, limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if !reminderID.IsZero() && l.entries[i].ReminderID != reminderID {
			continue
		}
		out = append(out, l.entries[i])
	}
	return out
}

// Len returns the number of retained entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
