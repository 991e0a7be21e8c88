package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xz3dev/quacklytics-sub000/code/db/seed"
	"github.com/xz3dev/quacklytics-sub000/code/query"
	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = t.TempDir()
	}
	e := New(cfg, nil, nil)
	require.NoError(t, e.Open(context.Background()))
	t.Cleanup(e.Close)
	return e
}

func fixtureEvents() []typesdb.AnalyticsEvent {
	opts := seed.DefaultOptions(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	opts.Days = 10
	return seed.Generate(opts)
}

func fixturePartitions(t *testing.T, events []typesdb.AnalyticsEvent) []typesdb.FileDownload {
	t.Helper()
	parts, err := seed.WritePartitions(context.Background(), events, t.TempDir(), nil)
	require.NoError(t, err)
	files := make([]typesdb.FileDownload, 0, len(parts))
	for name, blob := range parts {
		files = append(files, typesdb.FileDownload{Filename: name, Blob: blob, Checksum: name + "-v1"})
	}
	return files
}

func TestOpenIsReady(t *testing.T) {
	e := New(Config{ScratchDir: t.TempDir()}, nil, nil)
	require.NoError(t, e.Open(context.Background()))
	t.Cleanup(e.Close)
	assert.Equal(t, Ready, e.State())

	require.NoError(t, e.SetupTable(context.Background()))
	count, err := e.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestImportParquetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})
	events := fixtureEvents()
	files := fixturePartitions(t, events)

	summary, err := e.ImportParquet(ctx, files)
	require.NoError(t, err)
	assert.Len(t, summary.Imported, len(files))
	assert.Empty(t, summary.Failed)

	count, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(events)), count)

	summary, err = e.ImportParquet(ctx, files)
	require.NoError(t, err)
	assert.Empty(t, summary.Failed)

	count, err = e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(events)), count)
}

func TestImportParquetReportsBadFiles(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})
	files := fixturePartitions(t, fixtureEvents())
	files = append(files,
		typesdb.FileDownload{Filename: "events_2024_09.parquet", Blob: []byte("not parquet")},
		typesdb.FileDownload{Filename: "events_2024_10.parquet"},
	)

	summary, err := e.ImportParquet(ctx, files)
	require.NoError(t, err)
	assert.Len(t, summary.Imported, len(files)-2)
	require.Len(t, summary.Failed, 2)
	assert.ElementsMatch(t, []string{"events_2024_09.parquet", "events_2024_10.parquet"},
		[]string{summary.Failed[0].Filename, summary.Failed[1].Filename})
}

func TestDailyCountsMatchFixture(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})
	events := fixtureEvents()
	_, err := e.ImportParquet(ctx, fixturePartitions(t, events))
	require.NoError(t, err)

	rows, err := e.RunQuery(ctx, query.Query{
		Aggregations: []query.Aggregation{{Function: query.Count, Field: query.Field{Name: "id"}, Alias: "count"}},
		GroupBy:      []query.GroupBy{{Field: query.Field{Name: "timestamp"}, Bucket: query.BucketDay}},
	})
	require.NoError(t, err)

	want := seed.CountByDay(events)
	got := make(map[time.Time]int64, len(rows))
	for _, r := range rows {
		bucket, ok := r["bucket_0"].(time.Time)
		require.True(t, ok, "bucket_0 is %T", r["bucket_0"])
		got[bucket.UTC()] = r["count"].(int64)
	}
	assert.Equal(t, want, got)
}

func TestImportEventsChunksAndDedupes(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{BatchSize: 7})
	events := fixtureEvents()[:50]
	withDupes := append(append([]typesdb.AnalyticsEvent{}, events...), events[:5]...)

	n, err := e.ImportEvents(ctx, withDupes)
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	_, err = e.ImportEvents(ctx, events)
	require.NoError(t, err)

	count, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), count)
}

func TestImportEventsKeepsGoodChunksWhenOneFails(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{BatchSize: 2})
	events := append([]typesdb.AnalyticsEvent{}, fixtureEvents()[:6]...)
	events[3].Properties = map[string]any{"bad": make(chan int)}

	n, err := e.ImportEvents(ctx, events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk at 2")
	assert.Equal(t, 4, n)

	count, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	got, err := e.Events(ctx, query.Query{Filters: []query.FieldFilter{
		{Field: query.Field{Name: "id"}, Operator: query.OpEq, Value: events[2].ID},
	}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEventsRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})
	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	in := typesdb.AnalyticsEvent{
		ID: "evt-1", Timestamp: ts, EventType: "purchase", DistinctID: "user_1", PersonID: "p1",
		Properties: map[string]any{"plan": "pro", "amount": 12.5},
	}
	_, err := e.ImportEvents(ctx, []typesdb.AnalyticsEvent{in})
	require.NoError(t, err)

	out, err := e.Events(ctx, query.Query{
		Filters: []query.FieldFilter{{Field: query.Field{Name: "plan", IsProperty: true}, Operator: query.OpEq, Value: "pro"}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in, out[0])
}

func TestEnqueueFlushesBeforeQuery(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{FlushInterval: time.Hour})
	events := fixtureEvents()[:3]
	require.NoError(t, e.Enqueue(ctx, events...))

	rows, err := e.RunQuery(ctx, query.Query{})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestTimeRangeIsPublished(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})
	ch, cancel := e.SubscribeRange()
	defer cancel()

	_, ok, err := e.TimeRange(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	events := fixtureEvents()
	_, err = e.ImportEvents(ctx, events)
	require.NoError(t, err)

	select {
	case r := <-ch:
		assert.True(t, r.Start.Equal(events[0].Timestamp))
		assert.True(t, r.End.Equal(events[len(events)-1].Timestamp))
	case <-time.After(time.Second):
		t.Fatal("no range published")
	}
}

func TestPendingSkipsImportedChecksums(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})
	files := fixturePartitions(t, fixtureEvents())
	_, err := e.ImportParquet(ctx, files[:1])
	require.NoError(t, err)

	pending, err := e.Pending(ctx, files)
	require.NoError(t, err)
	assert.Len(t, pending, len(files)-1)

	files[0].Checksum = "changed"
	pending, err = e.Pending(ctx, files)
	require.NoError(t, err)
	assert.Len(t, pending, len(files))
}

func TestFailedEngineReturnsErrNotReady(t *testing.T) {
	ctx := context.Background()
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	e := New(Config{ScratchDir: filepath.Join(blocker, "scratch")}, nil, nil)
	require.ErrorIs(t, e.Open(ctx), ErrNotReady)
	assert.Equal(t, Failed, e.State())

	_, err := e.RunQuery(ctx, query.Query{})
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = e.ImportEvents(ctx, fixtureEvents()[:1])
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = e.ImportParquet(ctx, nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, e.SetupTable(ctx), ErrNotReady)
}

func TestSchemaFromLoadedEvents(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})
	ts := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)
	_, err := e.ImportEvents(ctx, []typesdb.AnalyticsEvent{
		{ID: "1", Timestamp: ts, EventType: "purchase", Properties: map[string]any{"plan": "pro", "amount": 12.5, "gift": true}},
		{ID: "2", Timestamp: ts, EventType: "signup", Properties: map[string]any{"referrer": "ads"}},
	})
	require.NoError(t, err)

	schema, err := e.Schema(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]string{
		"purchase": {"plan": "string", "amount": "number", "gift": "boolean"},
		"signup":   {"referrer": "string"},
	}, schema)
}

func TestRangePublisherKeepsLatest(t *testing.T) {
	p := NewRangePublisher()
	ch, cancel := p.Subscribe()

	first := typesdb.TimeRange{Start: time.Unix(0, 0), End: time.Unix(10, 0)}
	second := typesdb.TimeRange{Start: time.Unix(0, 0), End: time.Unix(20, 0)}
	p.Publish(first)
	p.Publish(second)
	assert.Equal(t, second, <-ch)

	current, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, second, current)

	cancel()
	_, open := <-ch
	assert.False(t, open)
	p.Close()
}
