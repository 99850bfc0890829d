package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mercury-plus/platform/internal/reminder"
	"github.com/mercury-plus/platform/internal/shared/config"
	"github.com/mercury-plus/platform/internal/shared/metrics"
)

// Provider delivers one alert to a patient-facing channel
type Provider interface {
	Name() string
	Send(ctx context.Context, alert *Alert) error
}

// DoseSource feeds the dispatcher with upcoming dose occurrences
type DoseSource interface {
	DueWithin(ctx context.Context, window time.Duration) ([]reminder.DueDose, error)
}

// Service polls the reminder store for doses falling due inside the
// lookahead window and fans the resulting alerts out to a worker pool.
// Each dose occurrence is dispatched at most once per process lifetime;
// a restart may re-alert, which is acceptable for a best-effort channel.
type Service struct {
	source   DoseSource
	provider Provider
	cfg      config.DispatchConfig

	mu         sync.RWMutex
	dispatched map[alertKey]*Alert
	stats      Stats

	alertCh chan *Alert

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	retryAttempts int
	retryDelay    time.Duration
}

// NewService creates a dispatch service
func NewService(source DoseSource, provider Provider, cfg config.DispatchConfig) *Service {
	return &Service{
		source:        source,
		provider:      provider,
		cfg:           cfg,
		dispatched:    make(map[alertKey]*Alert),
		alertCh:       make(chan *Alert, cfg.BufferSize),
		stopCh:        make(chan struct{}),
		retryAttempts: 3,
		retryDelay:    30 * time.Second,
	}
}

// Start launches the poll loop and the delivery workers
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("dispatcher already started")
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.wg.Add(1)
	go s.pollLoop(ctx)

	return nil
}

// Stop stops the dispatcher and waits for in-flight deliveries
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("dispatcher not started")
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	return nil
}

// pollLoop enqueues alerts for newly due doses on every tick
func (s *Service) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	// First sweep immediately so a restart does not wait a full interval.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep queries the dose source and enqueues anything not yet dispatched
func (s *Service) sweep(ctx context.Context) {
	due, err := s.source.DueWithin(ctx, s.cfg.Lookahead)
	if err != nil {
		log.Printf("Dispatch sweep failed: %v", err)
		return
	}

	for _, dose := range due {
		alert := s.admit(dose)
		if alert == nil {
			continue
		}

		select {
		case s.alertCh <- alert:
		default:
			// Buffer full: drop the reservation so the next sweep retries.
			s.forget(alert)
			log.Printf("Alert buffer full, deferring %s %s %s", dose.ReminderID, dose.Date, dose.Slot)
		}
	}
}

// admit reserves the dose occurrence and builds its alert, or returns nil
// when it was already dispatched.
func (s *Service) admit(dose reminder.DueDose) *Alert {
	key := alertKey{dose.ReminderID, dose.Date, dose.Slot}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.dispatched[key]; seen {
		return nil
	}

	now := time.Now()
	alert := &Alert{
		ID:           fmt.Sprintf("alr-%d", now.UnixNano()),
		Status:       AlertStatusPending,
		ReminderID:   dose.ReminderID,
		PatientID:    dose.PatientID,
		MedicineName: dose.MedicineName,
		Dosage:       dose.Dosage,
		Date:         dose.Date,
		Slot:         dose.Slot,
		DueAt:        dose.DueAt,
		Subject:      fmt.Sprintf("Time for %s", dose.MedicineName),
		Body:         fmt.Sprintf("Take %s of %s at %s.", dose.Dosage, dose.MedicineName, dose.Slot),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.dispatched[key] = alert
	s.stats.TotalDispatched++
	return alert
}

// forget releases a reservation made by admit
func (s *Service) forget(alert *Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dispatched, alertKey{alert.ReminderID, alert.Date, alert.Slot})
	s.stats.TotalDispatched--
}

// worker delivers alerts from the channel
func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case alert := <-s.alertCh:
			s.deliver(ctx, alert)
		}
	}
}

// deliver sends one alert, retrying with a delay on failure
func (s *Service) deliver(ctx context.Context, alert *Alert) {
	err := s.provider.Send(ctx, alert)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		alert.ErrorMessage = err.Error()
		alert.RetryCount++

		if alert.RetryCount >= s.retryAttempts {
			alert.Status = AlertStatusFailed
			s.stats.TotalFailed++
			s.updateRate()
			metrics.RecordNotificationDispatched(s.provider.Name(), "failed")
		} else {
			go func() {
				select {
				case <-time.After(s.retryDelay):
				case <-s.stopCh:
					return
				}
				select {
				case s.alertCh <- alert:
				default:
				}
			}()
		}
	} else {
		now := time.Now()
		alert.SentAt = &now
		alert.Status = AlertStatusSent
		s.stats.TotalSent++
		s.updateRate()
		metrics.RecordNotificationDispatched(s.provider.Name(), "sent")
	}

	alert.UpdatedAt = time.Now()
}

// updateRate recomputes the delivery rate; called with the lock held
func (s *Service) updateRate() {
	done := s.stats.TotalSent + s.stats.TotalFailed
	if done > 0 {
		s.stats.DeliveryRate = float64(s.stats.TotalSent) / float64(done)
	}
}

// GetAlert returns a snapshot of the alert for a dose occurrence, if one
// was dispatched. Workers keep mutating the tracked alert, so callers get
// a copy.
func (s *Service) GetAlert(key reminder.DueDose) (Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.dispatched[alertKey{key.ReminderID, key.Date, key.Slot}]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}

// Alerts returns snapshots of all alerts dispatched since startup
func (s *Service) Alerts() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, 0, len(s.dispatched))
	for _, a := range s.dispatched {
		out = append(out, *a)
	}
	return out
}

// GetStats returns dispatcher statistics
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
