package domain

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar date (YYYY-MM-DD) with no time of day.
// The zero value means "never".
type Date string

// DateOf returns the calendar date of t in loc. A nil loc means time.Local.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return Date(t.In(loc).Format(DateLayout))
}

// ParseDate validates s as a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date(s), nil
}

// IsZero reports whether d is unset.
func (d Date) IsZero() bool { return d == "" }

// Before reports whether d is strictly earlier than other.
// YYYY-MM-DD strings order lexically.
func (d Date) Before(other Date) bool { return d < other }

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool { return d > other }

// String implements fmt.Stringer.
func (d Date) String() string { return string(d) }

// DaysBetween returns the number of calendar days from a to b (b - a).
// Dates are parsed in UTC so DST transitions never skew the count.
// An unset or malformed date counts as zero days apart.
func DaysBetween(a, b Date) int {
	ta, err := time.Parse(DateLayout, string(a))
	if err != nil {
		return 0
	}
	tb, err := time.Parse(DateLayout, string(b))
	if err != nil {
		return 0
	}
	return int(tb.Sub(ta).Hours() / 24)
}
