package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xz3dev/quacklytics-sub000/code/query"
	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// Row is one result row keyed by column name
type Row = map[string]any

// RunQuery compiles q, executes it as a prepared statement and returns the rows. Queued live
// events are flushed first so results include them.
func (e *Engine) RunQuery(ctx context.Context, q query.Query) ([]Row, error) {
	text, params := query.Build(q)
	return e.RunSQL(ctx, text, params...)
}

// RunSQL executes a raw read statement the same way RunQuery does
func (e *Engine) RunSQL(ctx context.Context, text string, params ...any) ([]Row, error) {
	database, err := e.conn(ctx, "run_query")
	if err != nil {
		return nil, err
	}
	started := time.Now()
	defer func() { e.metrics.ObserveQuery(time.Since(started)) }()

	stmt, err := database.Prepare(ctx, e.events.Name(), text)
	if err != nil {
		return nil, fmt.Errorf("prepare query: %w", err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	e.log.Debug("query executed",
		zap.String("sql", text),
		zap.Int("params", len(params)),
		zap.Int("rows", len(out)),
		zap.Duration("took", time.Since(started)))
	return out, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Events runs q and maps the rows onto events. q should select whole rows (no aggregations).
func (e *Engine) Events(ctx context.Context, q query.Query) ([]typesdb.AnalyticsEvent, error) {
	rows, err := e.RunQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	events := make([]typesdb.AnalyticsEvent, 0, len(rows))
	for _, r := range rows {
		ev := typesdb.AnalyticsEvent{
			ID:         asString(r["id"]),
			EventType:  asString(r["event_type"]),
			DistinctID: asString(r["distinct_id"]),
			PersonID:   asString(r["person_id"]),
		}
		if ts, ok := r["timestamp"].(time.Time); ok {
			ev.Timestamp = ts.UTC()
		}
		props, err := asProperties(r["properties"])
		if err != nil {
			return nil, fmt.Errorf("decode properties of %s: %w", ev.ID, err)
		}
		ev.Properties = props
		events = append(events, ev)
	}
	return events, nil
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func asProperties(v any) (map[string]any, error) {
	var raw []byte
	switch p := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return p, nil
	case string:
		raw = []byte(p)
	case []byte:
		raw = p
	default:
		return nil, fmt.Errorf("unexpected properties type %T", v)
	}
	var props map[string]any
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, err
	}
	return props, nil
}
