package reconcile

import (
	"fmt"
	"time"
)

// SeriesFromRows converts engine rows into a series, reading the bucket time from bucketKey
// and the value from valueKey. Rows whose bucket is not a time are skipped; a value that
// cannot be read as a number counts as 0.
func SeriesFromRows(name string, rows []map[string]any, bucketKey, valueKey string) (Series, error) {
	s := Series{Name: name, Points: make([]Point, 0, len(rows))}
	for i, row := range rows {
		raw, ok := row[bucketKey]
		if !ok {
			return Series{}, fmt.Errorf("row %d has no column %q", i, bucketKey)
		}
		t, ok := toTime(raw)
		if !ok {
			continue
		}
		v, _ := ToFloat64(row[valueKey])
		s.Points = append(s.Points, Point{Time: t, Value: v})
	}
	return s, nil
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	default:
		return time.Time{}, false
	}
}
