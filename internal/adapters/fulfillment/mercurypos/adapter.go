package mercurypos

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/mercury-plus/platform/internal/adapters/fulfillment"
)

// Adapter implements fulfillment.Adapter for the Mercury POS dispensing
// system, which keeps fulfilled orders in a SQL Server database.
type Adapter struct {
	db     *sql.DB
	config Config

	restockChan chan fulfillment.RestockEvent

	running  bool
	mu       sync.RWMutex
	cancel   context.CancelFunc
	lastPoll time.Time
	wg       sync.WaitGroup
}

// Config holds Mercury POS adapter configuration
type Config struct {
	fulfillment.Config

	// Mercury POS specific settings
	OrdersTable string `json:"orders_table"`
}

// DefaultMercuryPOSConfig returns default Mercury POS configuration
func DefaultMercuryPOSConfig() Config {
	return Config{
		Config:      fulfillment.DefaultConfig(),
		OrdersTable: "dbo.FulfilledOrders",
	}
}

// New creates a new Mercury POS adapter
func New(cfg Config) (*Adapter, error) {
	return &Adapter{
		config:      cfg,
		restockChan: make(chan fulfillment.RestockEvent, cfg.EventBufferSize),
	}, nil
}

// Start initializes the database connection and starts polling
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("adapter already running")
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		a.config.Host,
		a.config.Port,
		a.config.Database,
		a.config.User,
		a.config.Password,
	)

	if a.config.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	a.running = true
	a.lastPoll = time.Now().Add(-a.config.PollInterval)

	pollCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.pollLoop(pollCtx)

	return nil
}

// Stop stops the adapter and closes connections
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	close(a.restockChan)

	if a.db != nil {
		a.db.Close()
	}

	a.running = false
	return nil
}

// Health checks database connectivity
func (a *Adapter) Health(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.running {
		return fmt.Errorf("adapter not running")
	}

	return a.db.PingContext(ctx)
}

// SourceSystem returns the source system name
func (a *Adapter) SourceSystem() string {
	return "mercury_pos"
}

// IsConnected returns connection status
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running && a.db != nil
}

// FetchOrder retrieves one fulfilled order by ID
func (a *Adapter) FetchOrder(ctx context.Context, orderID string) (*fulfillment.Order, error) {
	if !a.IsConnected() {
		return nil, fmt.Errorf("adapter not connected")
	}

	query := fmt.Sprintf(`
		SELECT
			OrderID,
			PatientRef,
			MedicineName,
			Dosage,
			Quantity,
			FulfilledAt
		FROM %s
		WHERE OrderID = @orderID
	`, a.config.OrdersTable)

	row := a.db.QueryRowContext(ctx, query, sql.Named("orderID", orderID))

	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("order not found: %s", orderID)
		}
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}

	order.SourceSystem = a.SourceSystem()
	return order, nil
}

// FetchOrdersSince retrieves orders fulfilled after the given instant
func (a *Adapter) FetchOrdersSince(ctx context.Context, since time.Time) ([]fulfillment.Order, error) {
	if !a.IsConnected() {
		return nil, fmt.Errorf("adapter not connected")
	}

	query := fmt.Sprintf(`
		SELECT
			OrderID,
			PatientRef,
			MedicineName,
			Dosage,
			Quantity,
			FulfilledAt
		FROM %s
		WHERE FulfilledAt > @since
		ORDER BY FulfilledAt ASC
	`, a.config.OrdersTable)

	rows, err := a.db.QueryContext(ctx, query, sql.Named("since", since))
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []fulfillment.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		order.SourceSystem = a.SourceSystem()
		orders = append(orders, *order)
	}

	return orders, rows.Err()
}

// SubscribeRestocks registers a handler for fulfilled-order events
func (a *Adapter) SubscribeRestocks(ctx context.Context, handler fulfillment.RestockHandler) error {
	if !a.IsConnected() {
		return fmt.Errorf("adapter not connected")
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-a.restockChan:
				if !ok {
					return
				}
				handler(event)
			}
		}
	}()

	return nil
}

// pollLoop checks for newly fulfilled orders on every tick
func (a *Adapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			lastPoll := a.lastPoll
			a.lastPoll = time.Now()
			a.mu.Unlock()

			if err := a.pollFulfilled(ctx, lastPoll); err != nil {
				fmt.Printf("Error polling fulfilled orders: %v\n", err)
			}
		}
	}
}

// pollFulfilled emits restock events for orders fulfilled since lastPoll
func (a *Adapter) pollFulfilled(ctx context.Context, since time.Time) error {
	orders, err := a.FetchOrdersSince(ctx, since)
	if err != nil {
		return err
	}

	for _, order := range orders {
		event := fulfillment.RestockEvent{
			EventID:      order.ID,
			Timestamp:    order.FulfilledAt,
			OrderID:      order.ID,
			PatientRef:   order.PatientRef,
			MedicineName: order.MedicineName,
			Quantity:     order.Quantity,
			SourceSystem: a.SourceSystem(),
		}

		select {
		case a.restockChan <- event:
		default:
			// Channel full, skip event
		}
	}

	return nil
}

// scanner covers both sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*fulfillment.Order, error) {
	var order fulfillment.Order
	var patientRef, dosage sql.NullString

	err := row.Scan(
		&order.ID,
		&patientRef,
		&order.MedicineName,
		&dosage,
		&order.Quantity,
		&order.FulfilledAt,
	)
	if err != nil {
		return nil, err
	}

	if patientRef.Valid {
		order.PatientRef = patientRef.String
	}
	if dosage.Valid {
		order.Dosage = dosage.String
	}

	return &order, nil
}

// Verify interface implementation
var _ fulfillment.Adapter = (*Adapter)(nil)
