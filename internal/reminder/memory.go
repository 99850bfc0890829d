package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mercury-plus/platform/internal/shared/errors"
	"github.com/mercury-plus/platform/internal/shared/types"
)

// MemoryRepository is an in-memory Repository with optional write-through
// snapshot persistence. When a snapshot path is set, every mutating call
// writes the full store to disk before returning, so state survives process
// restarts without a database. Used in limited mode and by tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	reminders map[types.ID]*Reminder
	order     []types.ID
	doses     map[doseKey]*DoseStatus
	snapshot  string
}

type doseKey struct {
	ReminderID types.ID
	Date       types.Date
	Slot       types.TimeSlot
}

// snapshotFile is the on-disk shape of the full store
type snapshotFile struct {
	Reminders []snapshotReminder `json:"reminders"`
	Doses     []DoseStatus       `json:"doses"`
}

// snapshotReminder carries the version counter, which the API shape omits
type snapshotReminder struct {
	Reminder
	Version int64 `json:"version"`
}

// NewMemoryRepository creates an in-memory repository. snapshotPath may be
// empty to disable persistence.
func NewMemoryRepository(snapshotPath string) (*MemoryRepository, error) {
	r := &MemoryRepository{
		reminders: make(map[types.ID]*Reminder),
		doses:     make(map[doseKey]*DoseStatus),
		snapshot:  snapshotPath,
	}

	if snapshotPath != "" {
		if err := r.load(); err != nil {
			return nil, fmt.Errorf("failed to load reminder snapshot: %w", err)
		}
	}

	return r, nil
}

func (m *MemoryRepository) load() error {
	data, err := os.ReadFile(m.snapshot)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}

	for i := range file.Reminders {
		rem := file.Reminders[i].Reminder
		rem.Version = file.Reminders[i].Version
		m.reminders[rem.ID] = &rem
		m.order = append(m.order, rem.ID)
	}
	for i := range file.Doses {
		d := file.Doses[i]
		m.doses[doseKey{d.ReminderID, d.Date, d.Slot}] = &d
	}

	return nil
}

// persist writes the full store snapshot. Called with the lock held, before
// the mutating call returns, so a crash mid-call leaves the previous
// snapshot intact (write to temp file, then rename).
func (m *MemoryRepository) persist() error {
	if m.snapshot == "" {
		return nil
	}

	file := snapshotFile{}
	for _, id := range m.order {
		rem := m.reminders[id]
		file.Reminders = append(file.Reminders, snapshotReminder{Reminder: *rem, Version: rem.Version})
	}
	for _, d := range m.doses {
		file.Doses = append(file.Doses, *d)
	}
	sort.Slice(file.Doses, func(i, j int) bool {
		a, b := file.Doses[i], file.Doses[j]
		if a.ReminderID != b.ReminderID {
			return a.ReminderID < b.ReminderID
		}
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		return a.Slot < b.Slot
	})

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}

	tmp := m.snapshot + ".tmp"
	if err := os.MkdirAll(filepath.Dir(m.snapshot), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.snapshot)
}

// Create inserts a new reminder
func (m *MemoryRepository) Create(ctx context.Context, r *Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reminders[r.ID]; exists {
		return errors.Conflict("reminder already exists")
	}

	clone := *r
	m.reminders[r.ID] = &clone
	m.order = append(m.order, r.ID)

	if err := m.persist(); err != nil {
		delete(m.reminders, r.ID)
		m.order = m.order[:len(m.order)-1]
		return errors.Wrap(err, "failed to persist reminder")
	}

	return nil
}

// Get retrieves a reminder by ID
func (m *MemoryRepository) Get(ctx context.Context, id types.ID) (*Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reminders[id]
	if !ok {
		return nil, errors.NotFound("reminder", id.String())
	}

	clone := *r
	return &clone, nil
}

// List returns all reminders in creation order
func (m *MemoryRepository) List(ctx context.Context) ([]Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Reminder, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.reminders[id])
	}
	return out, nil
}

// Update persists a modified reminder, guarded by its version
func (m *MemoryRepository) Update(ctx context.Context, r *Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.reminders[r.ID]
	if !ok {
		return errors.NotFound("reminder", r.ID.String())
	}
	if current.Version != r.Version {
		return errors.Conflict("reminder was modified concurrently")
	}

	prev := *current
	clone := *r
	clone.Version++
	m.reminders[r.ID] = &clone

	if err := m.persist(); err != nil {
		m.reminders[r.ID] = &prev
		return errors.Wrap(err, "failed to persist reminder")
	}

	r.Version = clone.Version
	return nil
}

// Delete removes a reminder and its dose records; idempotent
func (m *MemoryRepository) Delete(ctx context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reminders[id]; !ok {
		return nil
	}

	delete(m.reminders, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	for key := range m.doses {
		if key.ReminderID == id {
			delete(m.doses, key)
		}
	}

	if err := m.persist(); err != nil {
		return errors.Wrap(err, "failed to persist deletion")
	}

	return nil
}

// GetDose retrieves one dose status record, nil when absent
func (m *MemoryRepository) GetDose(ctx context.Context, id types.ID, date types.Date, slot types.TimeSlot) (*DoseStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.doses[doseKey{id, date, slot}]
	if !ok {
		return nil, nil
	}

	clone := *d
	return &clone, nil
}

// ListDoses retrieves the status records for one reminder on one date
func (m *MemoryRepository) ListDoses(ctx context.Context, id types.ID, date types.Date) ([]DoseStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []DoseStatus
	for key, d := range m.doses {
		if key.ReminderID == id && key.Date == date {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })

	return out, nil
}

// SaveDose applies a quantity change and its status record atomically
func (m *MemoryRepository) SaveDose(ctx context.Context, r *Reminder, status *DoseStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.reminders[r.ID]
	if !ok {
		return errors.NotFound("reminder", r.ID.String())
	}
	if current.Version != r.Version {
		return errors.Conflict("reminder was modified concurrently")
	}

	key := doseKey{status.ReminderID, status.Date, status.Slot}
	prevRem := *current
	prevDose, hadDose := m.doses[key]

	clone := *r
	clone.Version++
	m.reminders[r.ID] = &clone
	doseClone := *status
	m.doses[key] = &doseClone

	if err := m.persist(); err != nil {
		m.reminders[r.ID] = &prevRem
		if hadDose {
			m.doses[key] = prevDose
		} else {
			delete(m.doses, key)
		}
		return errors.Wrap(err, "failed to persist dose")
	}

	r.Version = clone.Version
	return nil
}

// RemoveDose reverts a quantity change and deletes the record atomically
func (m *MemoryRepository) RemoveDose(ctx context.Context, r *Reminder, date types.Date, slot types.TimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.reminders[r.ID]
	if !ok {
		return errors.NotFound("reminder", r.ID.String())
	}
	if current.Version != r.Version {
		return errors.Conflict("reminder was modified concurrently")
	}

	key := doseKey{r.ID, date, slot}
	prevRem := *current
	prevDose, hadDose := m.doses[key]

	clone := *r
	clone.Version++
	m.reminders[r.ID] = &clone
	delete(m.doses, key)

	if err := m.persist(); err != nil {
		m.reminders[r.ID] = &prevRem
		if hadDose {
			m.doses[key] = prevDose
		}
		return errors.Wrap(err, "failed to persist dose removal")
	}

	r.Version = clone.Version
	return nil
}
