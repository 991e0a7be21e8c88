package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xz3dev/quacklytics-sub000/code/partition"
)

func TestGenerateIsDeterministic(t *testing.T) {
	opts := DefaultOptions(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	a := Generate(opts)
	b := Generate(opts)
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)

	seen := make(map[string]bool)
	for _, e := range a {
		assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
		seen[e.ID] = true
		assert.False(t, e.Timestamp.Before(opts.Start))
		assert.True(t, e.Timestamp.Before(opts.Start.AddDate(0, 0, opts.Days)))
	}

	opts.Seed = 7
	assert.NotEqual(t, a[0].ID, Generate(opts)[0].ID)
}

func TestGenerateRespectsPerDayBounds(t *testing.T) {
	opts := DefaultOptions(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	counts := CountByDay(Generate(opts))
	assert.Len(t, counts, opts.Days)
	for day, n := range counts {
		assert.GreaterOrEqual(t, n, int64(opts.MinPerDay), day)
		assert.LessOrEqual(t, n, int64(opts.MaxPerDay), day)
	}
}

func TestWritePartitionsOnePerWeek(t *testing.T) {
	// 2024-01-01 is an ISO week 1 Monday, so 14 days span weeks 1 and 2
	opts := DefaultOptions(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	parts, err := WritePartitions(context.Background(), Generate(opts), t.TempDir(), nil)
	require.NoError(t, err)

	require.Len(t, parts, 2)
	for name, blob := range parts {
		_, ok := partition.Parse(name)
		assert.True(t, ok, name)
		assert.Equal(t, "PAR1", string(blob[:4]))
	}
	assert.Contains(t, parts, "events_2024_01.parquet")
	assert.Contains(t, parts, "events_2024_02.parquet")
}
