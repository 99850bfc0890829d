package reminder

import (
	"github.com/mercury-plus/platform/internal/shared/types"
)

// LowSupplyDays is the days-remaining threshold at or under which a
// prediction is flagged as low supply.
const LowSupplyDays = 7

// Predict computes the refill prediction for a remaining quantity at the
// given dosing frequency, anchored to today. Returns nil when the supply is
// exhausted or the frequency yields no doses; callers treat nil as "no
// prediction", not as an error.
//
// Days remaining use the floor policy: quantity divided by the exact dose
// rate, truncated. The prediction is a snapshot re-derived on every quantity
// or frequency change, never incrementally aged.
func Predict(quantityRemaining int, frequency Frequency, today types.Date) *RefillPrediction {
	if quantityRemaining <= 0 {
		return nil
	}

	rate := frequency.DosesPerDay()
	if rate.IsZero() {
		return nil
	}

	days := rate.DaysOfSupply(quantityRemaining)
	return &RefillPrediction{
		DaysRemaining: days,
		RefillDate:    today.AddDays(days),
		LowSupply:     days <= LowSupplyDays,
	}
}

// refresh recomputes the cached refill date on the reminder itself
func (r *Reminder) refreshRefill(today types.Date) *RefillPrediction {
	p := Predict(r.QuantityRemaining, r.Frequency, today)
	if p == nil {
		r.RefillDate = nil
		return nil
	}
	r.RefillDate = &p.RefillDate
	return p
}
