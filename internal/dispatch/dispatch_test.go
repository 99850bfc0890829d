package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/mercury-plus/platform/internal/reminder"
	"github.com/mercury-plus/platform/internal/shared/config"
	"github.com/mercury-plus/platform/internal/shared/types"
)

// stubSource feeds a fixed set of due doses
type stubSource struct {
	doses []reminder.DueDose
	err   error
}

func (s *stubSource) DueWithin(ctx context.Context, window time.Duration) ([]reminder.DueDose, error) {
	return s.doses, s.err
}

func testConfig() config.DispatchConfig {
	return config.DispatchConfig{
		Enabled:      true,
		Lookahead:    24 * time.Hour,
		PollInterval: time.Minute,
		Workers:      2,
		BufferSize:   16,
	}
}

func testDose(slot types.TimeSlot) reminder.DueDose {
	return reminder.DueDose{
		ReminderID:   types.MustParseID("7b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"),
		MedicineName: "Metformin",
		Dosage:       "500mg",
		Date:         types.MustParseDate("2026-03-15"),
		Slot:         slot,
		DueAt:        slot.At(types.MustParseDate("2026-03-15"), time.UTC),
	}
}

func TestSweepDedupes(t *testing.T) {
	source := &stubSource{doses: []reminder.DueDose{testDose("08:00"), testDose("20:00")}}
	svc := NewService(source, NewMockPushProvider(), testConfig())

	ctx := context.Background()
	svc.sweep(ctx)
	if got := len(svc.alertCh); got != 2 {
		t.Fatalf("Expected 2 queued alerts, got %d", got)
	}

	// The same doses on a later sweep are not re-dispatched.
	svc.sweep(ctx)
	if got := len(svc.alertCh); got != 2 {
		t.Errorf("Expected no new alerts after repeat sweep, got %d queued", got)
	}

	stats := svc.GetStats()
	if stats.TotalDispatched != 2 {
		t.Errorf("Expected 2 dispatched, got %d", stats.TotalDispatched)
	}
}

func TestDeliverSuccess(t *testing.T) {
	provider := NewMockPushProvider()
	source := &stubSource{doses: []reminder.DueDose{testDose("08:00")}}
	svc := NewService(source, provider, testConfig())

	ctx := context.Background()
	svc.sweep(ctx)

	alert := <-svc.alertCh
	svc.deliver(ctx, alert)

	if alert.Status != AlertStatusSent {
		t.Errorf("Expected sent, got %s", alert.Status)
	}
	if alert.SentAt == nil {
		t.Error("Expected sent timestamp")
	}
	if len(provider.SentAlerts()) != 1 {
		t.Errorf("Expected 1 sent alert, got %d", len(provider.SentAlerts()))
	}

	stats := svc.GetStats()
	if stats.TotalSent != 1 || stats.DeliveryRate != 1.0 {
		t.Errorf("Expected 1 sent at rate 1.0, got %+v", stats)
	}
}

func TestAlertsReturnsSnapshots(t *testing.T) {
	provider := NewMockPushProvider()
	source := &stubSource{doses: []reminder.DueDose{testDose("08:00")}}
	svc := NewService(source, provider, testConfig())

	ctx := context.Background()
	svc.sweep(ctx)

	before := svc.Alerts()
	if len(before) != 1 || before[0].Status != AlertStatusPending {
		t.Fatalf("Expected 1 pending alert, got %+v", before)
	}

	alert := <-svc.alertCh
	svc.deliver(ctx, alert)

	// Delivery must not reach through snapshots handed out earlier.
	if before[0].Status != AlertStatusPending {
		t.Errorf("Expected earlier snapshot to stay pending, got %s", before[0].Status)
	}

	after := svc.Alerts()
	if len(after) != 1 || after[0].Status != AlertStatusSent {
		t.Errorf("Expected sent in a fresh snapshot, got %+v", after)
	}

	snap, ok := svc.GetAlert(testDose("08:00"))
	if !ok || snap.Status != AlertStatusSent {
		t.Errorf("Expected sent alert snapshot, got %+v", snap)
	}
}

func TestDeliverFailure(t *testing.T) {
	provider := NewMockPushProvider()
	provider.SetFailOnSend(true)

	source := &stubSource{doses: []reminder.DueDose{testDose("08:00")}}
	svc := NewService(source, provider, testConfig())
	svc.retryAttempts = 1

	ctx := context.Background()
	svc.sweep(ctx)

	alert := <-svc.alertCh
	svc.deliver(ctx, alert)

	if alert.Status != AlertStatusFailed {
		t.Errorf("Expected failed, got %s", alert.Status)
	}
	if alert.ErrorMessage == "" {
		t.Error("Expected an error message")
	}

	stats := svc.GetStats()
	if stats.TotalFailed != 1 {
		t.Errorf("Expected 1 failed, got %d", stats.TotalFailed)
	}
}

func TestDeliverRequeuesBeforeGivingUp(t *testing.T) {
	provider := NewMockPushProvider()
	provider.SetFailOnSend(true)

	source := &stubSource{doses: []reminder.DueDose{testDose("08:00")}}
	svc := NewService(source, provider, testConfig())
	svc.retryDelay = time.Millisecond

	ctx := context.Background()
	svc.sweep(ctx)

	alert := <-svc.alertCh
	svc.deliver(ctx, alert)

	if alert.Status == AlertStatusFailed {
		t.Fatal("Expected alert still pending after first attempt")
	}
	if alert.RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", alert.RetryCount)
	}

	// The retry goroutine re-queues the alert.
	select {
	case requeued := <-svc.alertCh:
		if requeued.ID != alert.ID {
			t.Errorf("Expected the same alert re-queued")
		}
	case <-time.After(time.Second):
		t.Fatal("Expected alert to be re-queued")
	}
}

func TestStartStop(t *testing.T) {
	provider := NewMockPushProvider()
	source := &stubSource{doses: []reminder.DueDose{testDose("08:00")}}

	cfg := testConfig()
	cfg.PollInterval = 10 * time.Millisecond
	svc := NewService(source, provider, cfg)

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := svc.Start(ctx); err == nil {
		t.Error("Expected error on double start")
	}

	// The immediate first sweep plus the worker pool delivers the alert.
	deadline := time.After(time.Second)
	for len(provider.SentAlerts()) == 0 {
		select {
		case <-deadline:
			t.Fatal("Expected alert delivery before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := svc.Stop(); err == nil {
		// Stop after Stop closes a closed channel otherwise.
		t.Error("Expected error on double stop")
	}
}
