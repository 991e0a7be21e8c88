// Package reconcile aligns sparse per-series chart results on one dense time grid.
package reconcile

import (
	"time"

	"go.uber.org/zap"

	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// Point is one bucketed value of a series
type Point struct {
	Time  time.Time
	Value float64
}

// Series is the result of one chart query
type Series struct {
	Name   string
	Points []Point
}

// Bucket is one row of the dense table, holding one value per series in series order
type Bucket struct {
	Time   time.Time `json:"time"`
	Values []float64 `json:"values"`
}

// DenseTable is the reconciled chart matrix
type DenseTable struct {
	Series  []string `json:"series"`
	Buckets []Bucket `json:"buckets"`
	Dropped int      `json:"dropped"`
}

// Boundaries returns the bucket start times covering r. The grid begins at r.Start and steps
// by iv while the boundary is not after r.End; when the last boundary falls short of r.End one
// more is appended so the end is always covered.
func Boundaries(iv Interval, r typesdb.TimeRange) []time.Time {
	if r.End.Before(r.Start) {
		return nil
	}
	var out []time.Time
	t := r.Start
	for !t.After(r.End) {
		out = append(out, t)
		t = iv.Next(t)
	}
	if last := out[len(out)-1]; last.Before(r.End) {
		out = append(out, t)
	}
	return out
}

// Reconcile places every series point on the boundary grid of r. Missing slots stay 0.
// Points at or before the first boundary snap to it; any other point not exactly on a
// boundary is dropped and counted.
func Reconcile(series []Series, iv Interval, r typesdb.TimeRange, logger *zap.Logger) DenseTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	bounds := Boundaries(iv, r)

	table := DenseTable{
		Series:  make([]string, len(series)),
		Buckets: make([]Bucket, len(bounds)),
	}
	index := make(map[int64]int, len(bounds))
	for i, b := range bounds {
		table.Buckets[i] = Bucket{Time: b, Values: make([]float64, len(series))}
		index[b.UnixNano()] = i
	}

	for s, ser := range series {
		table.Series[s] = ser.Name
		for _, p := range ser.Points {
			slot, ok := slotFor(p.Time, bounds, index)
			if !ok {
				table.Dropped++
				logger.Debug("dropping point off the bucket grid",
					zap.String("series", ser.Name),
					zap.Time("time", p.Time),
					zap.String("interval", string(iv)))
				continue
			}
			table.Buckets[slot].Values[s] = p.Value
		}
	}
	return table
}

func slotFor(t time.Time, bounds []time.Time, index map[int64]int) (int, bool) {
	if len(bounds) == 0 {
		return 0, false
	}
	if !t.After(bounds[0]) {
		return 0, true
	}
	i, ok := index[t.UnixNano()]
	return i, ok
}
