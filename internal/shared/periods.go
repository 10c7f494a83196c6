package shared

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod indicates a malformed YYYY-MM period.
var ErrInvalidPeriod = errors.New("period must be formatted YYYY-MM")

// MonthPeriod is the half-open interval [Start, End) covering one calendar month in UTC.
type MonthPeriod struct {
	Start time.Time
	End   time.Time
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) MonthPeriod {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return MonthPeriod{Start: start, End: start.AddDate(0, 1, 0)}
}

// PreviousMonth returns the month before the one containing t.
func PreviousMonth(t time.Time) MonthPeriod {
	current := MonthOf(t)
	return MonthOf(current.Start.AddDate(0, 0, -1))
}

// ParseMonth parses a YYYY-MM label.
func ParseMonth(label string) (MonthPeriod, error) {
	t, err := time.Parse("2006-01", label)
	if err != nil {
		return MonthPeriod{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
	}
	return MonthOf(t), nil
}

// Label renders the period as YYYY-MM.
func (p MonthPeriod) Label() string {
	return p.Start.Format("2006-01")
}

// Contains reports whether t falls inside the period.
func (p MonthPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}
