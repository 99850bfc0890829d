package types

import (
	"database/sql/driver"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date without a time component, formatted as YYYY-MM-DD.
// All schedule arithmetic works on Dates so that wall-clock time zones never
// leak into stored state.
type Date string

// NewDate builds a Date from year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format(dateLayout))
}

// DateOf truncates a time.Time to its calendar date in the time's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// ParseDate parses a YYYY-MM-DD string into a Date.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(s), nil
}

// MustParseDate parses a date string, panics on error. Test helper.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns the midnight instant of the date in the given location.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t, _ := time.ParseInLocation(dateLayout, string(d), loc)
	return t
}

// AddDays returns the date n days later (n may be negative).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// Weekday returns the day of week the date falls on.
func (d Date) Weekday() time.Weekday {
	return d.Time(time.UTC).Weekday()
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return string(d) < string(other)
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return string(d) > string(other)
}

// IsZero checks if the date is empty.
func (d Date) IsZero() bool {
	return d == ""
}

// String returns the YYYY-MM-DD representation.
func (d Date) String() string {
	return string(d)
}

// Value implements driver.Valuer for database serialization.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return string(d), nil
}

// Scan implements sql.Scanner for database deserialization.
func (d *Date) Scan(value interface{}) error {
	if value == nil {
		*d = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*d = Date(v)
	case []byte:
		*d = Date(string(v))
	case time.Time:
		*d = DateOf(v)
	default:
		return fmt.Errorf("cannot scan %T into Date", value)
	}
	return nil
}

const slotLayout = "15:04"

// TimeSlot is a time of day in 24h HH:MM form. Slots sort correctly as
// plain strings, which the schedule generator relies on.
type TimeSlot string

// ParseTimeSlot parses an HH:MM string into a TimeSlot.
func ParseTimeSlot(s string) (TimeSlot, error) {
	t, err := time.Parse(slotLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid time slot %q: %w", s, err)
	}
	// Normalize e.g. "8:00" to "08:00" so string ordering holds.
	return TimeSlot(t.Format(slotLayout)), nil
}

// At anchors the slot on a calendar date in the given location, producing
// the concrete due instant.
func (s TimeSlot) At(d Date, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t, _ := time.ParseInLocation(dateLayout+" "+slotLayout, d.String()+" "+string(s), loc)
	return t
}

// IsZero checks if the slot is empty.
func (s TimeSlot) IsZero() bool {
	return s == ""
}

// String returns the HH:MM representation.
func (s TimeSlot) String() string {
	return string(s)
}

// Value implements driver.Valuer for database serialization.
func (s TimeSlot) Value() (driver.Value, error) {
	if s.IsZero() {
		return nil, nil
	}
	return string(s), nil
}

// Scan implements sql.Scanner for database deserialization.
func (s *TimeSlot) Scan(value interface{}) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = TimeSlot(v)
	case []byte:
		*s = TimeSlot(string(v))
	default:
		return fmt.Errorf("cannot scan %T into TimeSlot", value)
	}
	return nil
}
