package reminder

import (
	"sort"
	"time"

	"github.com/mercury-plus/platform/internal/shared/types"
)

// GenerateForDate derives the ordered dose occurrences for one reminder on
// one calendar date. The current time is an explicit parameter, never read
// from a global clock, so status derivation is deterministic under test.
//
// Statuses resolve as follows: a persisted taken record wins; otherwise a
// slot whose due instant has passed is missed; the earliest not-yet-due slot
// is upcoming and later ones pending. The taken/missed/not-yet-due split is
// load-bearing for refill math, since only taken decrements quantity.
func GenerateForDate(r *Reminder, date types.Date, now time.Time, recorded []DoseStatus) []ScheduleInstance {
	if date.Before(r.StartDate) {
		return nil
	}
	if r.EndDate != nil && date.After(*r.EndDate) {
		return nil
	}

	slots := r.Times
	if r.Frequency == FrequencyWeekly {
		// Weekly reminders fire only on the start date's weekday.
		if date.Weekday() != r.StartDate.Weekday() {
			return nil
		}
		if len(slots) > 1 {
			slots = slots[:1]
		}
	}

	taken := make(map[types.TimeSlot]bool, len(recorded))
	for _, rec := range recorded {
		if rec.Date == date && rec.Status == StatusTaken {
			taken[rec.Slot] = true
		}
	}

	ordered := make([]types.TimeSlot, len(slots))
	copy(ordered, slots)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	loc := now.Location()
	instances := make([]ScheduleInstance, 0, len(ordered))
	nextAssigned := false
	for _, slot := range ordered {
		dueAt := slot.At(date, loc)

		var status InstanceStatus
		switch {
		case taken[slot]:
			status = StatusTaken
		case dueAt.Before(now):
			status = StatusMissed
		case !nextAssigned:
			status = StatusUpcoming
			nextAssigned = true
		default:
			status = StatusPending
		}

		instances = append(instances, ScheduleInstance{
			ReminderID:   r.ID,
			MedicineName: r.MedicineName,
			Dosage:       r.Dosage,
			Date:         date,
			Slot:         slot,
			Status:       status,
			DueAt:        dueAt,
		})
	}

	return instances
}

// HasSlot reports whether the reminder's generated schedule for date contains
// the given slot. Mark-taken against anything else is NotFound.
func HasSlot(r *Reminder, date types.Date, slot types.TimeSlot) bool {
	if date.Before(r.StartDate) {
		return false
	}
	if r.EndDate != nil && date.After(*r.EndDate) {
		return false
	}
	if r.Frequency == FrequencyWeekly && date.Weekday() != r.StartDate.Weekday() {
		return false
	}
	for i, s := range r.Times {
		if s == slot {
			// Weekly uses only the first configured slot.
			if r.Frequency == FrequencyWeekly && i > 0 {
				return false
			}
			return true
		}
	}
	return false
}
