package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/mercury-plus/platform/internal/shared/events"
	"github.com/mercury-plus/platform/internal/shared/types"
)

// EventSource is the subscription surface the read model consumes
type EventSource interface {
	Subscribe(ctx context.Context, pattern string, handler events.Handler) error
}

// Subscriber projects reminder and dose events into the history log
type Subscriber struct {
	log    *Log
	source EventSource
}

// NewSubscriber creates a new history subscriber
func NewSubscriber(log *Log, source EventSource) *Subscriber {
	return &Subscriber{log: log, source: source}
}

// Start subscribes to every adherence-relevant event stream
func (s *Subscriber) Start(ctx context.Context) error {
	for _, pattern := range []string{"reminder.*", "dose.*"} {
		if err := s.source.Subscribe(ctx, pattern, s.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
		}
	}
	return nil
}

// handleEvent projects one event into the log
func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	entry := eventToEntry(event)
	if entry == nil {
		return nil
	}
	s.log.Append(*entry)
	return nil
}

// eventToEntry converts a domain event to a history entry. Events without
// a dotted type are not adherence actions and are skipped.
func eventToEntry(event events.Event) *Entry {
	if !strings.Contains(event.Type, ".") {
		return nil
	}

	entry := &Entry{
		ID:        types.NewID(),
		Action:    event.Type,
		PatientID: event.PatientID,
		ActorType: event.ActorType,
		Timestamp: event.Timestamp.UTC(),
	}

	data, ok := event.Data.(map[string]any)
	if !ok {
		return entry
	}

	entry.Details = data
	if v := stringField(data, "reminder_id"); v != "" {
		entry.ReminderID = types.ID(v)
	}
	if v := stringField(data, "date"); v != "" {
		entry.Date = types.Date(v)
	}
	if v := stringField(data, "slot"); v != "" {
		entry.Slot = types.TimeSlot(v)
	}
	return entry
}

// stringField reads a string-kind field from event data. Locally published
// events carry typed values; events replayed from the stream carry plain
// strings.
func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case types.ID:
		return string(v)
	case types.Date:
		return string(v)
	case types.TimeSlot:
		return string(v)
	}
	return ""
}
