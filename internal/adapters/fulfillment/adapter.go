package fulfillment

import (
	"context"
	"time"
)

// Adapter defines the interface for pharmacy fulfillment adapters.
// Implementations connect to a point-of-sale or dispensing system and
// surface fulfilled orders so refill tracking can pick up fresh supply.
type Adapter interface {
	// Order retrieval
	FetchOrder(ctx context.Context, orderID string) (*Order, error)
	FetchOrdersSince(ctx context.Context, since time.Time) ([]Order, error)

	// Real-time event subscription
	SubscribeRestocks(ctx context.Context, handler RestockHandler) error

	// Adapter metadata
	SourceSystem() string
	IsConnected() bool

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) error
}

// RestockHandler is called when a fulfilled order is detected
type RestockHandler func(event RestockEvent)

// Order is a fulfilled pharmacy order as the dispensing system records it
type Order struct {
	ID           string    `json:"id"`
	PatientRef   string    `json:"patient_ref,omitempty"`
	MedicineName string    `json:"medicine_name"`
	Dosage       string    `json:"dosage,omitempty"`
	Quantity     int       `json:"quantity"`
	FulfilledAt  time.Time `json:"fulfilled_at"`
	SourceSystem string    `json:"source_system"`
}

// RestockEvent signals a freshly fulfilled order
type RestockEvent struct {
	EventID      string    `json:"event_id"`
	Timestamp    time.Time `json:"timestamp"`
	OrderID      string    `json:"order_id"`
	PatientRef   string    `json:"patient_ref,omitempty"`
	MedicineName string    `json:"medicine_name"`
	Quantity     int       `json:"quantity"`
	SourceSystem string    `json:"source_system"`
}

// Config holds common configuration for fulfillment adapters
type Config struct {
	// Database connection
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`

	// Polling configuration
	PollInterval time.Duration `json:"poll_interval"`

	// Event publishing
	EventBufferSize int `json:"event_buffer_size"`
}

// DefaultConfig returns default adapter configuration
func DefaultConfig() Config {
	return Config{
		Port:            1433, // SQL Server default
		SSLMode:         "disable",
		PollInterval:    30 * time.Second,
		EventBufferSize: 1000,
	}
}
