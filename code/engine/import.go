package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// ImportSummary reports the outcome of a Parquet import
type ImportSummary struct {
	Imported []string            `json:"imported"`
	Failed   []typesdb.FileError `json:"failed,omitempty"`
}

// ImportParquet loads partition blobs into the events table. Files are imported concurrently
// and rows already present (same id) are ignored, so importing the same blob twice leaves the
// table unchanged. A failing file is reported in the summary and never stops the others; the
// returned error is only set when the engine is not ready.
func (e *Engine) ImportParquet(ctx context.Context, files []typesdb.FileDownload) (ImportSummary, error) {
	if _, err := e.conn(ctx, "import_parquet"); err != nil {
		return ImportSummary{}, err
	}

	var (
		mu      sync.Mutex
		summary ImportSummary
	)
	var g errgroup.Group
	for _, f := range files {
		f := f
		g.Go(func() error {
			err := e.importParquetFile(ctx, f)
			e.metrics.ObserveImport("parquet", err == nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.log.Warn("parquet import failed", zap.String("file", f.Filename), zap.Error(err))
				summary.Failed = append(summary.Failed, typesdb.FileError{Filename: f.Filename, Error: err.Error()})
				return nil
			}
			summary.Imported = append(summary.Imported, f.Filename)
			return nil
		})
	}
	_ = g.Wait()

	if len(summary.Imported) > 0 {
		e.refreshRange(ctx)
	}
	e.log.Info("parquet import finished",
		zap.Int("imported", len(summary.Imported)),
		zap.Int("failed", len(summary.Failed)))
	return summary, nil
}

func (e *Engine) importParquetFile(ctx context.Context, f typesdb.FileDownload) error {
	if len(f.Blob) == 0 {
		return errors.New("empty blob")
	}
	path := filepath.Join(e.cfg.ScratchDir, uuid.NewString()+".parquet")
	if err := os.WriteFile(path, f.Blob, 0o600); err != nil {
		return fmt.Errorf("spill blob: %w", err)
	}
	defer os.Remove(path)

	cols := strings.Join(e.events.Columns(), ", ")
	query := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) SELECT %s FROM read_parquet(%s)",
		e.events.Name(), cols, cols, sqlString(path))
	res, err := e.db.Exec(ctx, query)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil {
		e.metrics.ObserveImportedRows(int(n))
	}
	if f.Checksum != "" {
		if err := e.imported.SetChecksum(ctx, e.db, f.Filename, f.Checksum); err != nil {
			e.log.Warn("could not record imported checksum", zap.String("file", f.Filename), zap.Error(err))
		}
	}
	return nil
}

// Pending filters files down to those whose checksum differs from the one last imported into
// this engine. It lets a persistent engine skip cached partitions it already holds.
func (e *Engine) Pending(ctx context.Context, files []typesdb.FileDownload) ([]typesdb.FileDownload, error) {
	database, err := e.conn(ctx, "pending")
	if err != nil {
		return nil, err
	}
	done, err := e.imported.GetAll(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("read imported files: %w", err)
	}
	var out []typesdb.FileDownload
	for _, f := range files {
		if f.Checksum == "" || done[f.Filename] != f.Checksum {
			out = append(out, f)
		}
	}
	return out, nil
}

// ImportEvents inserts raw events in chunks of the configured batch size with one multi-row
// INSERT OR IGNORE per chunk. Duplicate ids within events keep their first occurrence. A
// failing chunk is logged and skipped; the joined chunk errors are returned together with the
// number of rows inserted by the chunks that succeeded.
func (e *Engine) ImportEvents(ctx context.Context, events []typesdb.AnalyticsEvent) (int, error) {
	database, err := e.conn(ctx, "import_events")
	if err != nil {
		return 0, err
	}
	events = dedupe(events)
	if len(events) == 0 {
		return 0, nil
	}

	var (
		inserted int
		errs     []error
	)
	for start := 0; start < len(events); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(events))
		n, err := e.insertChunk(ctx, database.Exec, events[start:end])
		e.metrics.ObserveImport("events", err == nil)
		if err != nil {
			e.log.Warn("event chunk insert failed",
				zap.Int("offset", start),
				zap.Int("events", end-start),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("chunk at %d: %w", start, err))
			continue
		}
		inserted += n
	}
	e.metrics.ObserveImportedRows(inserted)
	if inserted > 0 {
		e.refreshRange(ctx)
	}
	return inserted, errors.Join(errs...)
}

type execFunc func(ctx context.Context, query string, params ...any) (sql.Result, error)

func (e *Engine) insertChunk(ctx context.Context, exec execFunc, chunk []typesdb.AnalyticsEvent) (int, error) {
	cols := e.events.Columns()
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT OR IGNORE INTO %s (%s) VALUES ", e.events.Name(), strings.Join(cols, ", "))
	params := make([]any, 0, len(chunk)*len(cols))
	for i, ev := range chunk {
		props, err := ev.PropertiesJSON()
		if err != nil {
			return 0, fmt.Errorf("encode properties of %s: %w", ev.ID, err)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
		params = append(params, ev.ID, ev.Timestamp.UTC(), ev.EventType, ev.DistinctID, ev.PersonID, props)
	}

	res, err := exec(ctx, b.String(), params...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return len(chunk), nil
	}
	return int(n), nil
}

func dedupe(events []typesdb.AnalyticsEvent) []typesdb.AnalyticsEvent {
	seen := make(map[string]struct{}, len(events))
	out := make([]typesdb.AnalyticsEvent, 0, len(events))
	for _, ev := range events {
		if _, ok := seen[ev.ID]; ok {
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	return out
}

// sqlString renders s as an SQL string literal
func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
