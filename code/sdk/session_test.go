package sdk

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xz3dev/quacklytics-sub000/code/config"
	"github.com/xz3dev/quacklytics-sub000/code/core/charts"
	"github.com/xz3dev/quacklytics-sub000/code/core/queries"
	"github.com/xz3dev/quacklytics-sub000/code/db/seed"
	"github.com/xz3dev/quacklytics-sub000/code/engine"
	"github.com/xz3dev/quacklytics-sub000/code/query"
	"github.com/xz3dev/quacklytics-sub000/code/reconcile"
	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

func seedDir(t *testing.T) (string, []typesdb.AnalyticsEvent, []string) {
	t.Helper()
	opts := seed.DefaultOptions(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	opts.Days = 10
	events := seed.Generate(opts)
	parts, err := seed.WritePartitions(context.Background(), events, t.TempDir(), nil)
	require.NoError(t, err)
	dir := t.TempDir()
	names, err := seed.WriteDir(dir, parts)
	require.NoError(t, err)
	return dir, events, names
}

func testConfig(t *testing.T, dir, cachePath string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Source.Kind = config.SourceDir
	cfg.Source.Dir = dir
	cfg.Cache.Path = cachePath
	cfg.Engine.ScratchDir = t.TempDir()
	cfg.Sync.Concurrency = 2
	return cfg
}

func openSession(t *testing.T, cfg *config.Config) *Session {
	t.Helper()
	s, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionSyncAndChart(t *testing.T) {
	ctx := context.Background()
	dir, events, names := seedDir(t)
	s := openSession(t, testConfig(t, dir, filepath.Join(t.TempDir(), "cache.db")))
	assert.Equal(t, engine.Ready, s.EngineState())
	assert.NotEmpty(t, s.ID)

	res, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, names, res.Downloaded)
	assert.Empty(t, res.Failed)
	assert.Len(t, res.Files, len(names))

	again, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Downloaded)
	assert.Len(t, again.Files, len(names))

	loaded, ok, err := s.Range(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, loaded.Start.Equal(events[0].Timestamp.UTC()))
	assert.True(t, loaded.End.Equal(events[len(events)-1].Timestamp.UTC()))

	resp, err := s.Chart(ctx, charts.RenderRequest{
		Series: []charts.SeriesDef{{Name: "events"}},
		Bucket: reconcile.Day,
	})
	require.NoError(t, err)
	require.Len(t, resp.Table.Series, 1)
	assert.Zero(t, resp.Table.Dropped)

	// the grid runs one boundary past the last event's day
	want := seed.CountByDay(events)
	require.Len(t, resp.Table.Buckets, len(want)+1)
	var total float64
	for _, b := range resp.Table.Buckets {
		assert.Equal(t, float64(want[b.Time]), b.Values[0], b.Time.String())
		total += b.Values[0]
	}
	assert.Equal(t, float64(len(events)), total)
}

func TestSessionQueryExplain(t *testing.T) {
	dir, _, _ := seedDir(t)
	s := openSession(t, testConfig(t, dir, ""))

	resp, err := s.Query(context.Background(), queries.RunRequest{
		Query: query.Query{
			Filters: []query.FieldFilter{{Field: query.Field{Name: "event_type"}, Operator: query.OpEq, Value: "signup"}},
		},
		Explain: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM events WHERE event_type = ?", resp.SQL)
	assert.Equal(t, []any{"signup"}, resp.Params)
	assert.Empty(t, resp.Rows)
}

func TestSessionChartWithoutDataFails(t *testing.T) {
	dir, _, _ := seedDir(t)
	s := openSession(t, testConfig(t, dir, ""))

	_, err := s.Chart(context.Background(), charts.RenderRequest{
		Series: []charts.SeriesDef{{Name: "events"}},
		Bucket: reconcile.Day,
	})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSessionWarmFromCache(t *testing.T) {
	ctx := context.Background()
	dir, events, names := seedDir(t)
	cachePath := filepath.Join(t.TempDir(), "cache.db")

	first, err := Open(ctx, testConfig(t, dir, cachePath), nil)
	require.NoError(t, err)
	_, err = first.Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	s := openSession(t, testConfig(t, dir, cachePath))
	summary, err := s.Warm(ctx)
	require.NoError(t, err)
	assert.Len(t, summary.Imported, len(names))

	rows, err := s.RunQuery(ctx, query.Query{Aggregations: []query.Aggregation{{Function: query.Count, Alias: "n"}}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(len(events)), rows[0]["n"])

	res, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Downloaded)

	schema, err := s.Schema(ctx)
	require.NoError(t, err)
	assert.Contains(t, schema, "signup")
}
