package dispatch

import (
	"time"

	"github.com/mercury-plus/platform/internal/shared/types"
)

// AlertStatus represents an alert's delivery lifecycle
type AlertStatus string

const (
	AlertStatusPending AlertStatus = "pending"
	AlertStatusSent    AlertStatus = "sent"
	AlertStatusFailed  AlertStatus = "failed"
)

// Alert is one dose notification handed to a provider. Delivery is best
// effort: adherence state is owned by the reminder store, never by alerts.
type Alert struct {
	ID     string      `json:"id"`
	Status AlertStatus `json:"status"`

	ReminderID   types.ID       `json:"reminder_id"`
	PatientID    types.ID       `json:"patient_id,omitempty"`
	MedicineName string         `json:"medicine_name"`
	Dosage       string         `json:"dosage"`
	Date         types.Date     `json:"date"`
	Slot         types.TimeSlot `json:"slot"`
	DueAt        time.Time      `json:"due_at"`

	Subject string `json:"subject"`
	Body    string `json:"body"`

	RetryCount   int        `json:"retry_count"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// alertKey identifies the dose occurrence an alert belongs to, for dedup
// across poll cycles.
type alertKey struct {
	ReminderID types.ID
	Date       types.Date
	Slot       types.TimeSlot
}

// Stats summarizes dispatcher activity since startup
type Stats struct {
	TotalDispatched int64   `json:"total_dispatched"`
	TotalSent       int64   `json:"total_sent"`
	TotalFailed     int64   `json:"total_failed"`
	DeliveryRate    float64 `json:"delivery_rate"`
}
