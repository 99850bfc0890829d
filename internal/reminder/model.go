package reminder

import (
	"time"

	"github.com/mercury-plus/platform/internal/shared/types"
)

// Reminder is a patient's standing instruction to take a medicine. It is the
// exclusive owner of the quantity-remaining counter; everything derived from
// it (schedule instances, refill predictions) is recomputed on demand.
type Reminder struct {
	ID           types.ID  `json:"id"`
	PatientID    types.ID  `json:"patient_id,omitempty"`
	MedicineName string    `json:"medicine_name"`
	Dosage       string    `json:"dosage"`
	Frequency    Frequency `json:"frequency"`

	Times     []types.TimeSlot `json:"times"`
	StartDate types.Date       `json:"start_date"`
	EndDate   *types.Date      `json:"end_date,omitempty"`

	Quantity          int         `json:"quantity"`
	QuantityRemaining int         `json:"quantity_remaining"`
	RefillDate        *types.Date `json:"refill_date,omitempty"`

	// Version guards read-modify-write cycles in the store.
	Version int64 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InstanceStatus is the lifecycle state of one dose occurrence
type InstanceStatus string

const (
	// StatusPending marks a same-day dose not yet due and not next in line
	StatusPending InstanceStatus = "pending"
	// StatusUpcoming marks the next not-yet-due dose of the day
	StatusUpcoming InstanceStatus = "upcoming"
	// StatusTaken is terminal; reaching it decrements quantity exactly once
	StatusTaken InstanceStatus = "taken"
	// StatusMissed is terminal and derived at read time, never user-set
	StatusMissed InstanceStatus = "missed"
)

// DoseStatus is the persisted status record for one (reminder, date, slot)
// tuple. Records exist only for actioned doses; pending doses are derived.
type DoseStatus struct {
	ReminderID types.ID       `json:"reminder_id"`
	Date       types.Date     `json:"date"`
	Slot       types.TimeSlot `json:"slot"`
	Status     InstanceStatus `json:"status"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// ScheduleInstance is one concrete dose occurrence, derived from a Reminder
// and a target date. Only its status survives restarts, via DoseStatus.
type ScheduleInstance struct {
	ReminderID   types.ID       `json:"reminder_id"`
	MedicineName string         `json:"medicine_name"`
	Dosage       string         `json:"dosage"`
	Date         types.Date     `json:"date"`
	Slot         types.TimeSlot `json:"slot"`
	Status       InstanceStatus `json:"status"`
	DueAt        time.Time      `json:"due_at"`
}

// RefillPrediction is a derived snapshot anchored to "today" at computation
// time. Absent entirely when the supply or dose rate is zero.
type RefillPrediction struct {
	DaysRemaining int        `json:"days_remaining"`
	RefillDate    types.Date `json:"refill_date"`
	LowSupply     bool       `json:"low_supply"`
}

// CreateReminderRequest is the reminder-creation boundary shape, produced by
// manual entry or an accepted prescription-scan result. Medicine identity is
// not validated here, only schedule-shape invariants.
type CreateReminderRequest struct {
	PatientID         string   `json:"patient_id,omitempty"`
	MedicineName      string   `json:"medicine_name" validate:"required,min=1,max=255"`
	Dosage            string   `json:"dosage" validate:"required,min=1,max=100"`
	Frequency         string   `json:"frequency" validate:"required"`
	Times             []string `json:"times"`
	StartDate         string   `json:"start_date" validate:"required"`
	EndDate           *string  `json:"end_date,omitempty"`
	Quantity          int      `json:"quantity" validate:"required,gt=0"`
	QuantityRemaining *int     `json:"quantity_remaining,omitempty"`
}

// UpdateReminderRequest is the partial-update shape
type UpdateReminderRequest struct {
	MedicineName      *string   `json:"medicine_name,omitempty"`
	Dosage            *string   `json:"dosage,omitempty"`
	Frequency         *string   `json:"frequency,omitempty"`
	Times             *[]string `json:"times,omitempty"`
	StartDate         *string   `json:"start_date,omitempty"`
	EndDate           *string   `json:"end_date,omitempty"`
	Quantity          *int      `json:"quantity,omitempty"`
	QuantityRemaining *int      `json:"quantity_remaining,omitempty"`
}

// MarkDoseRequest identifies one dose occurrence
type MarkDoseRequest struct {
	Date string `json:"date" validate:"required"`
	Slot string `json:"slot" validate:"required"`
}

// DueDose is the dispatcher boundary shape for one upcoming occurrence
type DueDose struct {
	ReminderID   types.ID       `json:"reminder_id"`
	PatientID    types.ID       `json:"patient_id,omitempty"`
	MedicineName string         `json:"medicine_name"`
	Dosage       string         `json:"dosage"`
	Date         types.Date     `json:"date"`
	Slot         types.TimeSlot `json:"slot"`
	DueAt        time.Time      `json:"due_at"`
}
