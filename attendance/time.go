package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
	clockLayout = "15:04"

	minutesPerDay = 24 * 60
)

var secondsPerHour = decimal.NewFromInt(3600)

// =============================================================================
// DATES - Calendar days, always normalized to UTC midnight
// =============================================================================

// DateOf drops the time-of-day part, keeping the calendar date as seen in t's
// location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func Today() time.Time {
	return DateOf(time.Now())
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Value: s, Reason: "expected YYYY-MM-DD"}
	}
	return t, nil
}

func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// MonthOf truncates a date to its year-month, e.g. 2024-03-17 -> "2024-03".
func MonthOf(t time.Time) string { return t.Format(MonthLayout) }

// =============================================================================
// CLOCK TIME - Time of day as minutes since midnight
// =============================================================================

// ClockTime is a 24-hour HH:MM time of day.
type ClockTime int

// ParseClockTime parses an HH:MM string.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, &ValidationError{Field: "time", Value: s, Reason: "expected HH:MM"}
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

// MustClock is ParseClockTime for constants; it panics on bad input.
func MustClock(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

// parseOptionalClock returns nil for an empty string.
func parseOptionalClock(field, s string) (*ClockTime, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	c, err := ParseClockTime(s)
	if err != nil {
		return nil, &ValidationError{Field: field, Value: s, Reason: "expected HH:MM"}
	}
	return &c, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c ClockTime) After(other ClockTime) bool { return c > other }

// Ptr is a convenience for building records with literal times.
func (c ClockTime) Ptr() *ClockTime { return &c }

// =============================================================================
// SHIFT POLICY - What an out-time earlier than the in-time means
// =============================================================================

type ShiftPolicy string

const (
	// ShiftCrossMidnight treats out < in as a shift ending the next day.
	ShiftCrossMidnight ShiftPolicy = "cross_midnight"
	// ShiftReject fails the submission with a ValidationError.
	ShiftReject ShiftPolicy = "reject"
	// ShiftClamp records zero hours.
	ShiftClamp ShiftPolicy = "clamp"
)

func ParseShiftPolicy(s string) (ShiftPolicy, error) {
	switch p := ShiftPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ShiftCrossMidnight, ShiftReject, ShiftClamp:
		return p, nil
	case "":
		return ShiftCrossMidnight, nil
	}
	return "", &ValidationError{Field: "shift_policy", Value: s, Reason: "must be cross_midnight, reject or clamp"}
}

// WorkedHours returns the hours between in and out rounded to 2 decimals.
// Equal times yield zero. An out-time before the in-time is resolved by the
// policy.
func WorkedHours(in, out ClockTime, policy ShiftPolicy) (decimal.Decimal, error) {
	minutes := int(out) - int(in)
	if minutes < 0 {
		switch policy {
		case ShiftReject:
			return decimal.Zero, &ValidationError{
				Field:  "out_time",
				Value:  out.String(),
				Reason: fmt.Sprintf("earlier than in_time %s", in),
			}
		case ShiftClamp:
			return decimal.Zero, nil
		default:
			minutes += minutesPerDay
		}
	}
	seconds := decimal.NewFromInt(int64(minutes) * 60)
	return seconds.Div(secondsPerHour).Round(2), nil
}
