package reconcile

import (
	"fmt"
	"strings"
	"time"
)

// Interval is a bucket width on the chart grid
type Interval string

const (
	Hour  Interval = "hour"
	Day   Interval = "day"
	Week  Interval = "week"
	Month Interval = "month"
)

// ParseInterval accepts hour, day, week or month (case-insensitive)
func ParseInterval(s string) (Interval, error) {
	switch iv := Interval(strings.ToLower(strings.TrimSpace(s))); iv {
	case Hour, Day, Week, Month:
		return iv, nil
	default:
		return "", fmt.Errorf("unknown bucket interval %q", s)
	}
}

// Next returns the boundary following t. Months step by calendar month; the others are fixed
// widths.
func (iv Interval) Next(t time.Time) time.Time {
	switch iv {
	case Hour:
		return t.Add(time.Hour)
	case Week:
		return t.AddDate(0, 0, 7)
	case Month:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Align truncates t (in UTC) to the start of its bucket, matching DuckDB's date_trunc: weeks
// start on Monday, months on the 1st.
func (iv Interval) Align(t time.Time) time.Time {
	t = t.UTC()
	switch iv {
	case Hour:
		return t.Truncate(time.Hour)
	case Week:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}
