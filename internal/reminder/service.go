package reminder

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/mercury-plus/platform/internal/shared/errors"
	"github.com/mercury-plus/platform/internal/shared/events"
	"github.com/mercury-plus/platform/internal/shared/metrics"
	"github.com/mercury-plus/platform/internal/shared/types"
)

// Service owns the reminder lifecycle and the adherence state machine. All
// mutations of a reminder go through a per-reminder critical section, so
// concurrent duplicate mark-taken calls (double-tap racing a notification
// retry) can never decrement quantity twice.
type Service struct {
	repo Repository
	bus  *events.Bus // optional; nil disables the adherence event stream
	now  func() time.Time

	mu    sync.Mutex
	locks map[types.ID]chan struct{}
}

// Option configures a Service
type Option func(*Service)

// WithClock injects the time source, for deterministic tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBus attaches the adherence event stream
func WithBus(bus *events.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

// NewService creates the reminder service
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		now:   time.Now,
		locks: make(map[types.ID]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lock acquires the per-reminder critical section. It respects the caller's
// context so a timed-out caller gets a Timeout error with no side effects.
func (s *Service) lock(ctx context.Context, id types.ID) (func(), error) {
	s.mu.Lock()
	sem, ok := s.locks[id]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[id] = sem
	}
	s.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, errors.Timeout("reminder operation")
	}
}

func (s *Service) today() types.Date {
	return types.DateOf(s.now())
}

// Create validates a reminder-creation request, assigns an id, computes the
// initial refill prediction and persists the reminder.
func (s *Service) Create(ctx context.Context, req CreateReminderRequest) (*Reminder, error) {
	rem, err := s.buildReminder(req)
	if err != nil {
		return nil, err
	}

	rem.refreshRefill(s.today())

	if err := s.repo.Create(ctx, rem); err != nil {
		return nil, err
	}

	metrics.RecordReminderCreated(string(rem.Frequency))
	s.publish(ctx, "reminder.created", rem.PatientID, map[string]any{
		"reminder_id":   rem.ID,
		"medicine_name": rem.MedicineName,
		"frequency":     rem.Frequency,
		"quantity":      rem.Quantity,
	})

	return rem, nil
}

// buildReminder applies the schedule-shape invariants to a creation request
func (s *Service) buildReminder(req CreateReminderRequest) (*Reminder, error) {
	details := map[string]string{}

	if req.MedicineName == "" {
		details["medicine_name"] = "medicine name is required"
	}
	if req.Dosage == "" {
		details["dosage"] = "dosage is required"
	}

	freq, err := ParseFrequency(req.Frequency)
	if err != nil {
		details["frequency"] = err.Error()
	}

	var patientID types.ID
	if req.PatientID != "" {
		patientID, err = types.ParseID(req.PatientID)
		if err != nil {
			details["patient_id"] = err.Error()
		}
	}

	startDate, err := types.ParseDate(req.StartDate)
	if err != nil {
		details["start_date"] = err.Error()
	}

	var endDate *types.Date
	if req.EndDate != nil {
		d, err := types.ParseDate(*req.EndDate)
		if err != nil {
			details["end_date"] = err.Error()
		} else if d.Before(startDate) {
			details["end_date"] = "end date must not precede start date"
		} else {
			endDate = &d
		}
	}

	if req.Quantity <= 0 {
		details["quantity"] = "quantity must be positive"
	}

	if len(details) > 0 {
		return nil, errors.Validation("validation failed", details)
	}

	times, err := parseSlots(req.Times, freq)
	if err != nil {
		return nil, err
	}

	remaining := req.Quantity
	if req.QuantityRemaining != nil {
		remaining = *req.QuantityRemaining
	}
	if remaining < 0 || remaining > req.Quantity {
		return nil, errors.InvalidSchedule("quantity remaining out of range", map[string]string{
			"quantity_remaining": fmt.Sprintf("must be between 0 and %d", req.Quantity),
		})
	}

	now := s.now()
	return &Reminder{
		ID:                types.NewID(),
		PatientID:         patientID,
		MedicineName:      req.MedicineName,
		Dosage:            req.Dosage,
		Frequency:         freq,
		Times:             times,
		StartDate:         startDate,
		EndDate:           endDate,
		Quantity:          req.Quantity,
		QuantityRemaining: remaining,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// parseSlots validates the slot list against the frequency's cardinality.
// An empty list falls back to the frequency's default suggestion.
func parseSlots(raw []string, freq Frequency) ([]types.TimeSlot, error) {
	if len(raw) == 0 {
		return freq.DefaultSlots(), nil
	}

	expected := freq.ExpectedSlotCount()
	if len(raw) != expected {
		return nil, errors.InvalidSchedule("time slot count does not match frequency", map[string]string{
			"times": fmt.Sprintf("%s expects %d slot(s), got %d", freq, expected, len(raw)),
		})
	}

	slots := make([]types.TimeSlot, 0, len(raw))
	seen := make(map[types.TimeSlot]bool, len(raw))
	for _, v := range raw {
		slot, err := types.ParseTimeSlot(v)
		if err != nil {
			return nil, errors.InvalidSchedule("invalid time slot", map[string]string{"times": err.Error()})
		}
		if seen[slot] {
			return nil, errors.InvalidSchedule("duplicate time slot", map[string]string{"times": slot.String()})
		}
		seen[slot] = true
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	return slots, nil
}

// Get retrieves a reminder by ID
func (s *Service) Get(ctx context.Context, id types.ID) (*Reminder, error) {
	return s.repo.Get(ctx, id)
}

// List returns all reminders in creation order
func (s *Service) List(ctx context.Context) ([]Reminder, error) {
	return s.repo.List(ctx)
}

// Update applies a partial update atomically: either every field lands and
// the prediction is recomputed, or nothing changes.
func (s *Service) Update(ctx context.Context, id types.ID, req UpdateReminderRequest) (*Reminder, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rem, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.MedicineName != nil {
		rem.MedicineName = *req.MedicineName
	}
	if req.Dosage != nil {
		rem.Dosage = *req.Dosage
	}

	scheduleChanged := false
	if req.Frequency != nil {
		freq, err := ParseFrequency(*req.Frequency)
		if err != nil {
			return nil, errors.Validation("validation failed", map[string]string{"frequency": err.Error()})
		}
		rem.Frequency = freq
		scheduleChanged = true
	}
	if req.Times != nil {
		times, err := parseSlots(*req.Times, rem.Frequency)
		if err != nil {
			return nil, err
		}
		rem.Times = times
		scheduleChanged = true
	}
	// Frequency changes without new times must still satisfy the slot-count
	// invariant against the existing slots.
	if req.Frequency != nil && req.Times == nil && len(rem.Times) != rem.Frequency.ExpectedSlotCount() {
		return nil, errors.InvalidSchedule("time slot count does not match frequency", map[string]string{
			"times": fmt.Sprintf("%s expects %d slot(s), got %d", rem.Frequency, rem.Frequency.ExpectedSlotCount(), len(rem.Times)),
		})
	}

	if req.StartDate != nil {
		d, err := types.ParseDate(*req.StartDate)
		if err != nil {
			return nil, errors.Validation("validation failed", map[string]string{"start_date": err.Error()})
		}
		rem.StartDate = d
	}
	if req.EndDate != nil {
		if *req.EndDate == "" {
			rem.EndDate = nil
		} else {
			d, err := types.ParseDate(*req.EndDate)
			if err != nil {
				return nil, errors.Validation("validation failed", map[string]string{"end_date": err.Error()})
			}
			rem.EndDate = &d
		}
	}
	if rem.EndDate != nil && rem.EndDate.Before(rem.StartDate) {
		return nil, errors.Validation("validation failed", map[string]string{
			"end_date": "end date must not precede start date",
		})
	}

	quantityChanged := false
	if req.Quantity != nil {
		if *req.Quantity <= 0 {
			return nil, errors.Validation("validation failed", map[string]string{"quantity": "quantity must be positive"})
		}
		rem.Quantity = *req.Quantity
		if rem.QuantityRemaining > rem.Quantity {
			rem.QuantityRemaining = rem.Quantity
		}
		quantityChanged = true
	}
	if req.QuantityRemaining != nil {
		if *req.QuantityRemaining < 0 || *req.QuantityRemaining > rem.Quantity {
			return nil, errors.InvalidSchedule("quantity remaining out of range", map[string]string{
				"quantity_remaining": fmt.Sprintf("must be between 0 and %d", rem.Quantity),
			})
		}
		rem.QuantityRemaining = *req.QuantityRemaining
		quantityChanged = true
	}

	if scheduleChanged || quantityChanged {
		s.recordPrediction(rem.refreshRefill(s.today()))
	}
	rem.UpdatedAt = s.now()

	if err := ctx.Err(); err != nil {
		return nil, errors.Timeout("reminder update")
	}
	if err := s.repo.Update(ctx, rem); err != nil {
		return nil, err
	}

	s.publish(ctx, "reminder.updated", rem.PatientID, map[string]any{
		"reminder_id": rem.ID,
	})

	return rem, nil
}

// Delete removes a reminder; deleting an absent reminder succeeds silently
func (s *Service) Delete(ctx context.Context, id types.ID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, "reminder.deleted", "", map[string]any{"reminder_id": id})
	return nil
}

// ScheduleForDate derives the dose occurrences for one reminder on a date
func (s *Service) ScheduleForDate(ctx context.Context, id types.ID, date types.Date) ([]ScheduleInstance, error) {
	rem, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	recorded, err := s.repo.ListDoses(ctx, id, date)
	if err != nil {
		return nil, err
	}

	return GenerateForDate(rem, date, s.now(), recorded), nil
}

// ScheduleForAll aggregates occurrences across every reminder for one date,
// ordered by slot then medicine name: the "today's schedule" timeline.
func (s *Service) ScheduleForAll(ctx context.Context, date types.Date) ([]ScheduleInstance, error) {
	reminders, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var all []ScheduleInstance
	for i := range reminders {
		rem := &reminders[i]
		recorded, err := s.repo.ListDoses(ctx, rem.ID, date)
		if err != nil {
			return nil, err
		}
		all = append(all, GenerateForDate(rem, date, now, recorded)...)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Slot != all[j].Slot {
			return all[i].Slot < all[j].Slot
		}
		return all[i].MedicineName < all[j].MedicineName
	})

	return all, nil
}

// MarkTaken records one dose as taken, decrementing quantity exactly once.
// Repeating the call for the same (date, slot) is idempotent: it succeeds
// with no further decrement.
func (s *Service) MarkTaken(ctx context.Context, id types.ID, date types.Date, slot types.TimeSlot) (*Reminder, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rem, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !HasSlot(rem, date, slot) {
		return nil, errors.NotFound("schedule instance", fmt.Sprintf("%s %s %s", id, date, slot))
	}

	existing, err := s.repo.GetDose(ctx, id, date, slot)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == StatusTaken {
		// Already taken: idempotent, no double decrement.
		metrics.RecordDoseMarked("duplicate")
		return rem, nil
	}

	rem.QuantityRemaining--
	if rem.QuantityRemaining < 0 {
		rem.QuantityRemaining = 0
	}
	s.recordPrediction(rem.refreshRefill(s.today()))

	status := &DoseStatus{
		ReminderID: id,
		Date:       date,
		Slot:       slot,
		Status:     StatusTaken,
		RecordedAt: s.now(),
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Timeout("mark taken")
	}
	if err := s.repo.SaveDose(ctx, rem, status); err != nil {
		return nil, err
	}

	metrics.RecordDoseMarked("taken")
	s.publish(ctx, "dose.taken", rem.PatientID, map[string]any{
		"reminder_id":        id,
		"date":               date,
		"slot":               slot,
		"quantity_remaining": rem.QuantityRemaining,
	})

	return rem, nil
}

// UndoTaken is the symmetric inverse of MarkTaken: it re-increments quantity
// by exactly one and deletes the status record. Undoing a dose that was
// never taken is NotFound.
func (s *Service) UndoTaken(ctx context.Context, id types.ID, date types.Date, slot types.TimeSlot) (*Reminder, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rem, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetDose(ctx, id, date, slot)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.Status != StatusTaken {
		return nil, errors.NotFound("taken dose", fmt.Sprintf("%s %s %s", id, date, slot))
	}

	rem.QuantityRemaining++
	if rem.QuantityRemaining > rem.Quantity {
		rem.QuantityRemaining = rem.Quantity
	}
	s.recordPrediction(rem.refreshRefill(s.today()))

	if err := ctx.Err(); err != nil {
		return nil, errors.Timeout("undo taken")
	}
	if err := s.repo.RemoveDose(ctx, rem, date, slot); err != nil {
		return nil, err
	}

	metrics.RecordDoseUndone()
	s.publish(ctx, "dose.undone", rem.PatientID, map[string]any{
		"reminder_id":        id,
		"date":               date,
		"slot":               slot,
		"quantity_remaining": rem.QuantityRemaining,
	})

	return rem, nil
}

// Predict returns the current refill prediction for a reminder, or nil when
// the supply is exhausted.
func (s *Service) Predict(ctx context.Context, id types.ID) (*RefillPrediction, error) {
	rem, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Predict(rem.QuantityRemaining, rem.Frequency, s.today()), nil
}

// Restock applies an order-fulfillment restock: a fresh supply replaces the
// tracked bottle, and the prediction is recomputed.
func (s *Service) Restock(ctx context.Context, id types.ID, quantity int) (*Reminder, error) {
	if quantity <= 0 {
		return nil, errors.Validation("validation failed", map[string]string{
			"quantity": "restock quantity must be positive",
		})
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rem, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rem.Quantity = quantity
	rem.QuantityRemaining = quantity
	s.recordPrediction(rem.refreshRefill(s.today()))
	rem.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, rem); err != nil {
		return nil, err
	}

	metrics.RecordRestockApplied()
	s.publish(ctx, "reminder.restocked", rem.PatientID, map[string]any{
		"reminder_id": id,
		"quantity":    quantity,
	})

	return rem, nil
}

// FindByMedicine returns the reminders tracking a given medicine name,
// used by the fulfillment adapter to route restocks.
func (s *Service) FindByMedicine(ctx context.Context, medicineName string) ([]Reminder, error) {
	reminders, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	var matched []Reminder
	for _, rem := range reminders {
		if rem.MedicineName == medicineName {
			matched = append(matched, rem)
		}
	}
	return matched, nil
}

// DueWithin collects every not-yet-actioned occurrence falling inside the
// lookahead window from now. This is the dispatcher's feed; the engine makes
// no delivery guarantee.
func (s *Service) DueWithin(ctx context.Context, window time.Duration) ([]DueDose, error) {
	reminders, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	horizon := now.Add(window)

	var due []DueDose
	// Scan each calendar date the window touches.
	for date := types.DateOf(now); !date.After(types.DateOf(horizon)); date = date.AddDays(1) {
		for i := range reminders {
			rem := &reminders[i]
			recorded, err := s.repo.ListDoses(ctx, rem.ID, date)
			if err != nil {
				return nil, err
			}
			for _, inst := range GenerateForDate(rem, date, now, recorded) {
				if inst.Status == StatusTaken || inst.Status == StatusMissed {
					continue
				}
				if inst.DueAt.After(horizon) {
					continue
				}
				due = append(due, DueDose{
					ReminderID:   rem.ID,
					PatientID:    rem.PatientID,
					MedicineName: rem.MedicineName,
					Dosage:       rem.Dosage,
					Date:         inst.Date,
					Slot:         inst.Slot,
					DueAt:        inst.DueAt,
				})
			}
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	return due, nil
}

func (s *Service) recordPrediction(p *RefillPrediction) {
	if p != nil && p.LowSupply {
		metrics.RecordLowSupply()
	}
}

func (s *Service) publish(ctx context.Context, eventType string, patientID types.ID, data map[string]any) {
	if s.bus == nil {
		return
	}

	event := events.NewEvent(eventType, "reminder-engine", data)
	if !patientID.IsZero() {
		event = event.WithActor(patientID, "patient")
	}

	if err := s.bus.Publish(ctx, event); err != nil {
		// The event stream is an audit convenience; engine state never
		// depends on it.
		log.Printf("Warning: failed to publish %s: %v", eventType, err)
	}
}
