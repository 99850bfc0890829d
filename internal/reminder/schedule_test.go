package reminder

import (
	"testing"
	"time"

	"github.com/mercury-plus/platform/internal/shared/types"
)

func testReminder(freq Frequency, times []types.TimeSlot, start string) *Reminder {
	return &Reminder{
		ID:                types.NewID(),
		MedicineName:      "Metformin",
		Dosage:            "500mg",
		Frequency:         freq,
		Times:             times,
		StartDate:         types.MustParseDate(start),
		Quantity:          60,
		QuantityRemaining: 60,
	}
}

func at(date, clock string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", date+" "+clock)
	if err != nil {
		panic(err)
	}
	return t
}

func TestGenerateForDateBounds(t *testing.T) {
	rem := testReminder(FrequencyDaily, []types.TimeSlot{"08:00"}, "2026-03-10")
	end := types.MustParseDate("2026-03-20")
	rem.EndDate = &end

	now := at("2026-03-15", "12:00")

	tests := []struct {
		name     string
		date     string
		expected int
	}{
		{"before start date", "2026-03-09", 0},
		{"on start date", "2026-03-10", 1},
		{"inside range", "2026-03-15", 1},
		{"on end date", "2026-03-20", 1},
		{"after end date", "2026-03-21", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateForDate(rem, types.MustParseDate(tt.date), now, nil)
			if len(got) != tt.expected {
				t.Errorf("Expected %d instances, got %d", tt.expected, len(got))
			}
		})
	}
}

func TestGenerateForDateStatuses(t *testing.T) {
	rem := testReminder(FrequencyThriceDaily,
		[]types.TimeSlot{"08:00", "12:00", "20:00"}, "2026-03-01")

	// Mid-afternoon: 08:00 and 12:00 have passed, 20:00 has not.
	now := at("2026-03-15", "15:00")
	date := types.MustParseDate("2026-03-15")

	t.Run("without records", func(t *testing.T) {
		got := GenerateForDate(rem, date, now, nil)
		if len(got) != 3 {
			t.Fatalf("Expected 3 instances, got %d", len(got))
		}
		expected := []InstanceStatus{StatusMissed, StatusMissed, StatusUpcoming}
		for i, inst := range got {
			if inst.Status != expected[i] {
				t.Errorf("Slot %s: expected %s, got %s", inst.Slot, expected[i], inst.Status)
			}
		}
	})

	t.Run("taken record wins over missed", func(t *testing.T) {
		recorded := []DoseStatus{
			{ReminderID: rem.ID, Date: date, Slot: "08:00", Status: StatusTaken},
		}
		got := GenerateForDate(rem, date, now, recorded)
		if got[0].Status != StatusTaken {
			t.Errorf("Expected taken, got %s", got[0].Status)
		}
		if got[1].Status != StatusMissed {
			t.Errorf("Expected missed, got %s", got[1].Status)
		}
	})

	t.Run("morning view marks later slots pending", func(t *testing.T) {
		early := at("2026-03-15", "06:00")
		got := GenerateForDate(rem, date, early, nil)
		expected := []InstanceStatus{StatusUpcoming, StatusPending, StatusPending}
		for i, inst := range got {
			if inst.Status != expected[i] {
				t.Errorf("Slot %s: expected %s, got %s", inst.Slot, expected[i], inst.Status)
			}
		}
	})

	t.Run("slot due exactly now is still upcoming", func(t *testing.T) {
		got := GenerateForDate(rem, date, at("2026-03-15", "12:00"), nil)
		if got[0].Status != StatusMissed {
			t.Errorf("Expected earlier slot missed, got %s", got[0].Status)
		}
		if got[1].Status != StatusUpcoming {
			t.Errorf("Expected upcoming at the due instant, got %s", got[1].Status)
		}
		if got[2].Status != StatusPending {
			t.Errorf("Expected later slot pending, got %s", got[2].Status)
		}
	})
}

func TestGenerateForDateWeekly(t *testing.T) {
	// 2026-03-02 is a Monday.
	rem := testReminder(FrequencyWeekly, []types.TimeSlot{"09:00"}, "2026-03-02")
	now := at("2026-03-01", "00:00")

	tests := []struct {
		name     string
		date     string
		expected int
	}{
		{"start monday", "2026-03-02", 1},
		{"tuesday skipped", "2026-03-03", 0},
		{"next monday", "2026-03-09", 1},
		{"sunday skipped", "2026-03-08", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateForDate(rem, types.MustParseDate(tt.date), now, nil)
			if len(got) != tt.expected {
				t.Errorf("Expected %d instances, got %d", tt.expected, len(got))
			}
		})
	}
}

func TestGenerateForDateSortsSlots(t *testing.T) {
	rem := testReminder(FrequencyTwiceDaily,
		[]types.TimeSlot{"20:00", "08:00"}, "2026-03-01")

	got := GenerateForDate(rem, types.MustParseDate("2026-03-15"), at("2026-03-15", "06:00"), nil)
	if len(got) != 2 {
		t.Fatalf("Expected 2 instances, got %d", len(got))
	}
	if got[0].Slot != "08:00" || got[1].Slot != "20:00" {
		t.Errorf("Expected ascending slots, got %s then %s", got[0].Slot, got[1].Slot)
	}
	if !got[0].DueAt.Before(got[1].DueAt) {
		t.Error("Expected due instants in ascending order")
	}
}

func TestHasSlot(t *testing.T) {
	end := types.MustParseDate("2026-03-20")
	daily := testReminder(FrequencyTwiceDaily, []types.TimeSlot{"08:00", "20:00"}, "2026-03-10")
	daily.EndDate = &end

	weekly := testReminder(FrequencyWeekly, []types.TimeSlot{"09:00"}, "2026-03-02")

	tests := []struct {
		name     string
		rem      *Reminder
		date     string
		slot     types.TimeSlot
		expected bool
	}{
		{"valid slot", daily, "2026-03-15", "08:00", true},
		{"unknown slot", daily, "2026-03-15", "09:00", false},
		{"before start", daily, "2026-03-09", "08:00", false},
		{"after end", daily, "2026-03-21", "08:00", false},
		{"weekly on weekday", weekly, "2026-03-09", "09:00", true},
		{"weekly off weekday", weekly, "2026-03-10", "09:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasSlot(tt.rem, types.MustParseDate(tt.date), tt.slot); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}
