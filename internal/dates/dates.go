// Package dates handles the two timestamp shapes the ledger and price store
// use: a bare trading day ("2006-01-02") and an intraday point
// ("2006-01-02 15:04:05"). The distinction matters: calendar fallback steps
// a bare day back one weekday, but an intraday stamp back one hour.
package dates

import (
	"fmt"
	"strings"
	"time"
)

const (
	DayFormat  = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

// Stamp is a trading date with or without a time-of-day component.
type Stamp struct {
	t        time.Time
	dateOnly bool
}

// Parse accepts "2006-01-02" or "2006-01-02 15:04:05".
func Parse(s string) (Stamp, error) {
	if strings.Contains(s, " ") {
		t, err := time.Parse(TimeFormat, s)
		if err != nil {
			return Stamp{}, fmt.Errorf("invalid date-time %q: %w", s, err)
		}
		return Stamp{t: t}, nil
	}
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return Stamp{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Stamp{t: t, dateOnly: true}, nil
}

// MustParse is like Parse but panics on error. For tests and literals.
func MustParse(s string) Stamp {
	st, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return st
}

// DateOnly reports whether the stamp carries no time-of-day component.
func (s Stamp) DateOnly() bool { return s.dateOnly }

// Time returns the underlying instant.
func (s Stamp) Time() time.Time { return s.t }

// String renders the stamp in the same shape it was parsed from.
func (s Stamp) String() string {
	if s.dateOnly {
		return s.t.Format(DayFormat)
	}
	return s.t.Format(TimeFormat)
}

// Day returns the calendar-day part regardless of shape.
func (s Stamp) Day() string { return s.t.Format(DayFormat) }

// Before reports whether s is strictly before x, comparing instants.
func (s Stamp) Before(x Stamp) bool { return s.t.Before(x.t) }

// CalendarPrev steps back without consulting any trading calendar: one day
// (skipping Saturday and Sunday) for a bare day, one hour for an intraday
// stamp. The hour step intentionally does not skip weekends; this mirrors
// the store-less fallback contract.
func (s Stamp) CalendarPrev() Stamp {
	if s.dateOnly {
		t := s.t.AddDate(0, 0, -1)
		for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			t = t.AddDate(0, 0, -1)
		}
		return Stamp{t: t, dateOnly: true}
	}
	return Stamp{t: s.t.Add(-time.Hour)}
}

// DayOf extracts the calendar-day prefix of a raw date string without
// parsing it, so malformed ledger lines can still be compared by day.
func DayOf(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

// SameDay reports whether two raw date strings name the same calendar day.
func SameDay(a, b string) bool { return DayOf(a) == DayOf(b) }
