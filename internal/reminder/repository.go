package reminder

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mercury-plus/platform/internal/shared/errors"
	"github.com/mercury-plus/platform/internal/shared/metrics"
	"github.com/mercury-plus/platform/internal/shared/types"
)

// Repository is the durable home of reminders and dose status records.
// Mutating calls must be atomic: either the whole write lands or prior state
// stays intact, with no partial writes visible to readers.
type Repository interface {
	Create(ctx context.Context, r *Reminder) error
	Get(ctx context.Context, id types.ID) (*Reminder, error)
	// List returns reminders in creation order.
	List(ctx context.Context) ([]Reminder, error)
	Update(ctx context.Context, r *Reminder) error
	// Delete is idempotent; deleting an absent reminder is not an error.
	Delete(ctx context.Context, id types.ID) error

	// GetDose returns nil without error when no record exists.
	GetDose(ctx context.Context, id types.ID, date types.Date, slot types.TimeSlot) (*DoseStatus, error)
	ListDoses(ctx context.Context, id types.ID, date types.Date) ([]DoseStatus, error)
	// SaveDose writes the updated reminder and the status record atomically.
	SaveDose(ctx context.Context, r *Reminder, status *DoseStatus) error
	// RemoveDose writes the updated reminder and deletes the record atomically.
	RemoveDose(ctx context.Context, r *Reminder, date types.Date, slot types.TimeSlot) error
}

// PostgresRepository implements Repository over pgx
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new Postgres-backed repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const reminderColumns = `id, patient_id, medicine_name, dosage, frequency, times,
	start_date, end_date, quantity, quantity_remaining, refill_date, version,
	created_at, updated_at`

// Create inserts a new reminder
func (r *PostgresRepository) Create(ctx context.Context, rem *Reminder) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("reminder_create", time.Since(start)) }()

	query := `
		INSERT INTO adherence.reminders (
			id, patient_id, medicine_name, dosage, frequency, times,
			start_date, end_date, quantity, quantity_remaining, refill_date, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		rem.ID, nullableID(rem.PatientID), rem.MedicineName, rem.Dosage, rem.Frequency, slotStrings(rem.Times),
		rem.StartDate, rem.EndDate, rem.Quantity, rem.QuantityRemaining, rem.RefillDate, rem.Version,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create reminder")
	}

	return nil
}

// Get retrieves a reminder by ID
func (r *PostgresRepository) Get(ctx context.Context, id types.ID) (*Reminder, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("reminder_get", time.Since(start)) }()

	row := r.pool.QueryRow(ctx, `
		SELECT `+reminderColumns+`
		FROM adherence.reminders
		WHERE id = $1`, id)

	rem, err := scanReminder(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("reminder", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get reminder")
	}

	return rem, nil
}

// List returns all reminders in creation order
func (r *PostgresRepository) List(ctx context.Context) ([]Reminder, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("reminder_list", time.Since(start)) }()

	rows, err := r.pool.Query(ctx, `
		SELECT `+reminderColumns+`
		FROM adherence.reminders
		ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reminders")
	}
	defer rows.Close()

	var reminders []Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan reminder")
		}
		reminders = append(reminders, *rem)
	}

	return reminders, nil
}

// Update persists a modified reminder, guarded by its version
func (r *PostgresRepository) Update(ctx context.Context, rem *Reminder) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("reminder_update", time.Since(start)) }()

	result, err := r.pool.Exec(ctx, `
		UPDATE adherence.reminders SET
			medicine_name = $2, dosage = $3, frequency = $4, times = $5,
			start_date = $6, end_date = $7, quantity = $8, quantity_remaining = $9,
			refill_date = $10, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $11`,
		rem.ID, rem.MedicineName, rem.Dosage, rem.Frequency, slotStrings(rem.Times),
		rem.StartDate, rem.EndDate, rem.Quantity, rem.QuantityRemaining,
		rem.RefillDate, rem.Version,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update reminder")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("reminder", rem.ID.String())
	}
	rem.Version++

	return nil
}

// Delete removes a reminder and, via cascade, its dose records
func (r *PostgresRepository) Delete(ctx context.Context, id types.ID) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("reminder_delete", time.Since(start)) }()

	_, err := r.pool.Exec(ctx, `DELETE FROM adherence.reminders WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete reminder")
	}

	return nil
}

// GetDose retrieves one dose status record, nil when absent
func (r *PostgresRepository) GetDose(ctx context.Context, id types.ID, date types.Date, slot types.TimeSlot) (*DoseStatus, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("dose_get", time.Since(start)) }()

	status := &DoseStatus{}
	err := r.pool.QueryRow(ctx, `
		SELECT reminder_id, dose_date, slot, status, recorded_at
		FROM adherence.dose_status
		WHERE reminder_id = $1 AND dose_date = $2 AND slot = $3`,
		id, date, slot,
	).Scan(&status.ReminderID, &status.Date, &status.Slot, &status.Status, &status.RecordedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get dose status")
	}

	return status, nil
}

// ListDoses retrieves the status records for one reminder on one date
func (r *PostgresRepository) ListDoses(ctx context.Context, id types.ID, date types.Date) ([]DoseStatus, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("dose_list", time.Since(start)) }()

	rows, err := r.pool.Query(ctx, `
		SELECT reminder_id, dose_date, slot, status, recorded_at
		FROM adherence.dose_status
		WHERE reminder_id = $1 AND dose_date = $2
		ORDER BY slot`, id, date)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list dose statuses")
	}
	defer rows.Close()

	var statuses []DoseStatus
	for rows.Next() {
		var s DoseStatus
		if err := rows.Scan(&s.ReminderID, &s.Date, &s.Slot, &s.Status, &s.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan dose status")
		}
		statuses = append(statuses, s)
	}

	return statuses, nil
}

// SaveDose applies a quantity change and its status record in one transaction
func (r *PostgresRepository) SaveDose(ctx context.Context, rem *Reminder, status *DoseStatus) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("dose_save", time.Since(start)) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE adherence.reminders SET
			quantity_remaining = $2, refill_date = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $4`,
		rem.ID, rem.QuantityRemaining, rem.RefillDate, rem.Version,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update reminder quantity")
	}
	if result.RowsAffected() == 0 {
		return errors.Conflict("reminder was modified concurrently")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO adherence.dose_status (reminder_id, dose_date, slot, status, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (reminder_id, dose_date, slot) DO UPDATE SET
			status = EXCLUDED.status, recorded_at = EXCLUDED.recorded_at`,
		status.ReminderID, status.Date, status.Slot, status.Status, status.RecordedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert dose status")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit dose")
	}
	rem.Version++

	return nil
}

// RemoveDose reverts a quantity change and deletes the record in one transaction
func (r *PostgresRepository) RemoveDose(ctx context.Context, rem *Reminder, date types.Date, slot types.TimeSlot) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("dose_remove", time.Since(start)) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE adherence.reminders SET
			quantity_remaining = $2, refill_date = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $4`,
		rem.ID, rem.QuantityRemaining, rem.RefillDate, rem.Version,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update reminder quantity")
	}
	if result.RowsAffected() == 0 {
		return errors.Conflict("reminder was modified concurrently")
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM adherence.dose_status
		WHERE reminder_id = $1 AND dose_date = $2 AND slot = $3`,
		rem.ID, date, slot,
	)
	if err != nil {
		return errors.Wrap(err, "failed to delete dose status")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit dose removal")
	}
	rem.Version++

	return nil
}

// --- scan helpers ---

func scanReminder(row pgx.Row) (*Reminder, error) {
	rem := &Reminder{}
	var patientID *types.ID
	var times []string

	err := row.Scan(
		&rem.ID, &patientID, &rem.MedicineName, &rem.Dosage, &rem.Frequency, &times,
		&rem.StartDate, &rem.EndDate, &rem.Quantity, &rem.QuantityRemaining, &rem.RefillDate, &rem.Version,
		&rem.CreatedAt, &rem.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if patientID != nil {
		rem.PatientID = *patientID
	}
	rem.Times = make([]types.TimeSlot, len(times))
	for i, s := range times {
		rem.Times[i] = types.TimeSlot(s)
	}

	return rem, nil
}

func slotStrings(slots []types.TimeSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.String()
	}
	return out
}

func nullableID(id types.ID) *types.ID {
	if id.IsZero() {
		return nil
	}
	return &id
}
