package reminder

import (
	"fmt"

	"github.com/mercury-plus/platform/internal/shared/types"
)

// Frequency defines how often a medicine is taken. The enum is closed:
// every switch over it is exhaustive with no silent fallback, so adding a
// frequency is a compile-visible change across the dose-rate, slot-count
// and default-slot functions.
type Frequency string

const (
	FrequencyDaily       Frequency = "daily"
	FrequencyTwiceDaily  Frequency = "twice_daily"
	FrequencyThriceDaily Frequency = "thrice_daily"
	FrequencyWeekly      Frequency = "weekly"
)

// ParseFrequency validates a frequency label from the boundary
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case FrequencyDaily, FrequencyTwiceDaily, FrequencyThriceDaily, FrequencyWeekly:
		return f, nil
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

// DoseRate is a doses-per-day rate as an exact rational. Weekly dosing is
// 1/7, not a rounded float: refill math over multiple weeks depends on the
// denominator staying exact.
type DoseRate struct {
	Num int `json:"num"`
	Den int `json:"den"`
}

// IsZero reports whether the rate yields no doses
func (r DoseRate) IsZero() bool {
	return r.Num <= 0 || r.Den <= 0
}

// DaysOfSupply converts a remaining quantity into whole days at this rate,
// flooring the result. Floor is deliberate: with 7 pills at twice daily the
// supply is 3 full days, and reporting 4 would overstate it by half a dose.
func (r DoseRate) DaysOfSupply(quantity int) int {
	if r.IsZero() || quantity <= 0 {
		return 0
	}
	return quantity * r.Den / r.Num
}

// DosesPerDay returns the dosing rate for the frequency
func (f Frequency) DosesPerDay() DoseRate {
	switch f {
	case FrequencyDaily:
		return DoseRate{Num: 1, Den: 1}
	case FrequencyTwiceDaily:
		return DoseRate{Num: 2, Den: 1}
	case FrequencyThriceDaily:
		return DoseRate{Num: 3, Den: 1}
	case FrequencyWeekly:
		return DoseRate{Num: 1, Den: 7}
	}
	return DoseRate{}
}

// ExpectedSlotCount returns how many time-of-day slots the frequency requires
func (f Frequency) ExpectedSlotCount() int {
	switch f {
	case FrequencyDaily:
		return 1
	case FrequencyTwiceDaily:
		return 2
	case FrequencyThriceDaily:
		return 3
	case FrequencyWeekly:
		return 1
	}
	return 0
}

// DefaultSlots returns canonical default times, used only as creation-time
// suggestions and never enforced afterwards.
func (f Frequency) DefaultSlots() []types.TimeSlot {
	switch f {
	case FrequencyDaily:
		return []types.TimeSlot{"08:00"}
	case FrequencyTwiceDaily:
		return []types.TimeSlot{"08:00", "20:00"}
	case FrequencyThriceDaily:
		return []types.TimeSlot{"08:00", "12:00", "20:00"}
	case FrequencyWeekly:
		return []types.TimeSlot{"08:00"}
	}
	return nil
}

// Frequencies lists all supported frequencies with their creation defaults
func Frequencies() []FrequencyInfo {
	all := []Frequency{FrequencyDaily, FrequencyTwiceDaily, FrequencyThriceDaily, FrequencyWeekly}
	infos := make([]FrequencyInfo, 0, len(all))
	for _, f := range all {
		infos = append(infos, FrequencyInfo{
			Frequency:    f,
			SlotCount:    f.ExpectedSlotCount(),
			DefaultSlots: f.DefaultSlots(),
		})
	}
	return infos
}

// FrequencyInfo describes one frequency choice for the creation surface
type FrequencyInfo struct {
	Frequency    Frequency        `json:"frequency"`
	SlotCount    int              `json:"slot_count"`
	DefaultSlots []types.TimeSlot `json:"default_slots"`
}
