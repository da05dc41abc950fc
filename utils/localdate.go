package utils

import (
	"errors"
	"time"
)

// Calendar-date helpers for streak and window math. Dates are normalized to
// midnight UTC of the year/month/day so that AddDate arithmetic and equality
// checks are immune to DST transitions and zone offsets; the zone only matters
// at the boundary where a wall-clock instant is turned into a calendar date.

// ErrBadDate indicates an unparseable or missing calendar date.
var ErrBadDate = errors.New("invalid calendar date")

const dateLayout = "2006-01-02"

// DateOnly strips the clock from t and returns midnight UTC of t's calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseLocalDate parses a YYYY-MM-DD string into a normalized date.
func ParseLocalDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, ErrBadDate
	}
	return DateOnly(t), nil
}

// TodayIn resolves the current calendar date in the given IANA timezone.
func TodayIn(tz string) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, ErrBadDate
	}
	return DateOnly(time.Now().In(loc)), nil
}

// FormatDate renders a normalized date back to YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// NextDay returns the calendar day after d.
func NextDay(d time.Time) time.Time {
	return d.AddDate(0, 0, 1)
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}

// StartOfWeek returns the Monday of the week containing d (ISO 8601 weeks).
func StartOfWeek(d time.Time) time.Time {
	d = DateOnly(d)
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return d.AddDate(0, 0, -offset)
}

// StartOfMonth returns the first day of the month containing d.
func StartOfMonth(d time.Time) time.Time {
	y, m, _ := d.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}
