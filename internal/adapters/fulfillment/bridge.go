package fulfillment

import (
	"context"
	"log"

	"github.com/mercury-plus/platform/internal/reminder"
	"github.com/mercury-plus/platform/internal/shared/types"
)

// Restocker applies a fulfilled order to the reminders tracking a medicine
type Restocker interface {
	FindByMedicine(ctx context.Context, medicineName string) ([]reminder.Reminder, error)
	Restock(ctx context.Context, id types.ID, quantity int) (*reminder.Reminder, error)
}

// Bridge routes restock events from a fulfillment adapter into the
// reminder store. Orders for medicines without a reminder are ignored;
// the pharmacy sells to walk-ins too.
type Bridge struct {
	adapter   Adapter
	restocker Restocker
}

// NewBridge creates a fulfillment bridge
func NewBridge(adapter Adapter, restocker Restocker) *Bridge {
	return &Bridge{adapter: adapter, restocker: restocker}
}

// Run subscribes to the adapter's restock events until ctx is done
func (b *Bridge) Run(ctx context.Context) error {
	return b.adapter.SubscribeRestocks(ctx, func(event RestockEvent) {
		b.apply(ctx, event)
	})
}

func (b *Bridge) apply(ctx context.Context, event RestockEvent) {
	if event.Quantity <= 0 {
		return
	}

	matched, err := b.restocker.FindByMedicine(ctx, event.MedicineName)
	if err != nil {
		log.Printf("Restock lookup failed for %s: %v", event.MedicineName, err)
		return
	}

	for _, rem := range matched {
		if _, err := b.restocker.Restock(ctx, rem.ID, event.Quantity); err != nil {
			log.Printf("Restock of reminder %s failed: %v", rem.ID, err)
		}
	}
}
