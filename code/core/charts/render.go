package charts

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xz3dev/quacklytics-sub000/code/metrics"
	"github.com/xz3dev/quacklytics-sub000/code/query"
	"github.com/xz3dev/quacklytics-sub000/code/reconcile"
	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// bucketKey is the alias of the date bucket added to every series query. It sits outside the
// bucket_N names query.GroupAlias gives unaliased groupBy entries.
const bucketKey = "chart_bucket"

// defaultValueKey names the first aggregation when the definition leaves it unaliased
const defaultValueKey = "value"

// Runner executes a query against the engine
type Runner interface {
	RunQuery(ctx context.Context, q query.Query) ([]map[string]any, error)
}

// SeriesDef is one line of a chart
type SeriesDef struct {
	Name  string      `json:"name" yaml:"name"`
	Query query.Query `json:"query" yaml:"query"`
}

// RenderRequest represents the input for rendering a chart
type RenderRequest struct {
	Series []SeriesDef        `json:"series"`
	Bucket reconcile.Interval `json:"bucket"`
	Range  typesdb.TimeRange  `json:"range"`
}

// RenderResponse represents the reconciled chart
type RenderResponse struct {
	Table   reconcile.DenseTable `json:"table"`
	Queries []string             `json:"queries"`
}

// Render runs every series query over the range, bucketed by req.Bucket, and aligns the
// results on one dense grid.
func Render(ctx context.Context, runner Runner, req RenderRequest, logger *zap.Logger, m *metrics.Metrics) (*RenderResponse, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(req.Series) == 0 {
		return nil, errors.New("chart has no series")
	}
	iv, err := reconcile.ParseInterval(string(req.Bucket))
	if err != nil {
		return nil, err
	}
	if req.Range.End.Before(req.Range.Start) {
		return nil, fmt.Errorf("range end %s is before start %s", req.Range.End, req.Range.Start)
	}

	resp := &RenderResponse{Queries: make([]string, 0, len(req.Series))}
	series := make([]reconcile.Series, 0, len(req.Series))
	for _, def := range req.Series {
		q, valueKey := SeriesQuery(def.Query, iv, req.Range)
		text, _ := query.Build(q)
		resp.Queries = append(resp.Queries, text)

		rows, err := runner.RunQuery(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", def.Name, err)
		}
		s, err := reconcile.SeriesFromRows(def.Name, rows, bucketKey, valueKey)
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", def.Name, err)
		}
		series = append(series, s)
	}

	grid := typesdb.TimeRange{Start: iv.Align(req.Range.Start), End: req.Range.End}
	resp.Table = reconcile.Reconcile(series, iv, grid, logger)
	if resp.Table.Dropped > 0 {
		logger.Debug("chart points off the bucket grid", zap.Int("dropped", resp.Table.Dropped))
		m.ObserveDroppedPoints(resp.Table.Dropped)
	}
	return resp, nil
}

// SeriesQuery lays the bucket and range constraints over a base series query and returns it
// with the column holding the series value.
func SeriesQuery(base query.Query, iv reconcile.Interval, r typesdb.TimeRange) (query.Query, string) {
	aggs := append([]query.Aggregation(nil), base.Aggregations...)
	if len(aggs) == 0 {
		aggs = []query.Aggregation{{Function: query.Count}}
	}
	if aggs[0].Alias == "" {
		aggs[0].Alias = defaultValueKey
	}
	base.Aggregations = aggs

	ts := query.Field{Name: "timestamp", Type: query.FieldTimestamp}
	overlay := query.Query{
		GroupBy: []query.GroupBy{{Field: ts, Bucket: query.Bucket(iv), Alias: bucketKey}},
		Filters: []query.FieldFilter{
			{Field: ts, Operator: query.OpGte, Value: r.Start},
			{Field: ts, Operator: query.OpLte, Value: r.End},
		},
		OrderBy: []string{bucketKey},
	}
	return query.Merge(base, overlay), aggs[0].Alias
}
