// Package engine adapts the embedded DuckDB database to analytics use: schema setup, Parquet
// and raw event import, parameterized query execution, and publication of the loaded time
// range.
//
// The connection is opened lazily on first use. If that fails the engine stays in the Failed
// state and every operation returns ErrNotReady, so callers can tell "not loaded" apart from
// "legitimately empty".
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xz3dev/quacklytics-sub000/code/db"
	"github.com/xz3dev/quacklytics-sub000/code/db/tables"
	"github.com/xz3dev/quacklytics-sub000/code/metrics"
	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// ErrNotReady is returned by every operation while the engine has no usable connection
var ErrNotReady = errors.New("engine not ready")

// State is the readiness of the engine connection
type State int32

const (
	NotReady State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "not_ready"
	}
}

// Config holds engine settings
type Config struct {
	Path          string        // DuckDB file; "" keeps the database in memory
	Threads       int           // DuckDB worker threads; 0 leaves the default
	BatchSize     int           // rows per INSERT in ImportEvents and per write queue batch
	FlushInterval time.Duration // write queue flush interval for live events
	ScratchDir    string        // where Parquet blobs are spilled before import
}

const (
	defaultBatchSize     = 1000
	defaultFlushInterval = 2 * time.Second
)

type Engine struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics

	once    sync.Once
	state   atomic.Int32
	initErr error

	db       *db.DB
	events   *tables.EventsTable
	imported *tables.ImportedFiles
	ranges   *RangePublisher
}

// New returns an engine that opens its connection on first use
func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	return &Engine{
		cfg:      cfg,
		log:      logger.Named("engine"),
		metrics:  m,
		events:   &tables.EventsTable{},
		imported: &tables.ImportedFiles{},
		ranges:   NewRangePublisher(),
	}
}

// State reports the connection readiness
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Open initializes the connection and schema. Later calls return the outcome of the first.
func (e *Engine) Open(ctx context.Context) error {
	e.once.Do(func() {
		if err := e.open(ctx); err != nil {
			e.initErr = err
			e.state.Store(int32(Failed))
			e.log.Error("engine initialization failed", zap.Error(err))
			return
		}
		e.state.Store(int32(Ready))
		e.log.Info("engine ready", zap.String("path", e.cfg.Path), zap.Int("threads", e.cfg.Threads))
	})
	if e.State() != Ready {
		if e.initErr != nil {
			return fmt.Errorf("%w: %v", ErrNotReady, e.initErr)
		}
		return ErrNotReady
	}
	return nil
}

func (e *Engine) open(ctx context.Context) error {
	if err := os.MkdirAll(e.cfg.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	database, err := db.NewDB(e.cfg.Path, e.log)
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	if e.cfg.Threads > 0 {
		if err := database.Write(ctx, fmt.Sprintf("SET threads = %d", e.cfg.Threads)); err != nil {
			database.Close()
			return fmt.Errorf("set threads: %w", err)
		}
	}
	if err := createTables(ctx, database, e.events, e.imported); err != nil {
		database.Close()
		return err
	}
	e.db = database

	database.InitWriteQueue(e.events.Name(), e.cfg.BatchSize, e.cfg.FlushInterval,
		func(ctx context.Context, events []typesdb.AnalyticsEvent) error {
			_, err := e.ImportEvents(ctx, events)
			return err
		})

	// a persistent file may already hold events from an earlier run
	e.refreshRange(ctx)
	return nil
}

// conn returns the database, opening it if needed
func (e *Engine) conn(ctx context.Context, op string) (*db.DB, error) {
	if err := e.Open(ctx); err != nil {
		e.log.Warn("engine call while not ready", zap.String("op", op), zap.Error(err))
		return nil, err
	}
	return e.db, nil
}

// SetupTable creates the events and imported_files tables if they do not exist
func (e *Engine) SetupTable(ctx context.Context) error {
	database, err := e.conn(ctx, "setup_table")
	if err != nil {
		return err
	}
	return createTables(ctx, database, e.events, e.imported)
}

func createTables(ctx context.Context, database *db.DB, events *tables.EventsTable, imported *tables.ImportedFiles) error {
	if err := events.Init(ctx, database); err != nil {
		return fmt.Errorf("create %s: %w", events.Name(), err)
	}
	if err := imported.Init(ctx, database); err != nil {
		return fmt.Errorf("create %s: %w", imported.Name(), err)
	}
	return nil
}

// Enqueue queues live events; they reach the table on the next batch or flush tick
func (e *Engine) Enqueue(ctx context.Context, events ...typesdb.AnalyticsEvent) error {
	database, err := e.conn(ctx, "enqueue")
	if err != nil {
		return err
	}
	for _, ev := range events {
		if !database.QueueWrite(e.events.Name(), ev) {
			return fmt.Errorf("no write queue for %s", e.events.Name())
		}
	}
	return nil
}

// Count returns the number of stored events
func (e *Engine) Count(ctx context.Context) (int64, error) {
	database, err := e.conn(ctx, "count")
	if err != nil {
		return 0, err
	}
	database.ForceFlushTable(e.events.Name())
	return e.events.Count(ctx, database)
}

// Close flushes queued events and releases the connection
func (e *Engine) Close() {
	if e.State() != Ready {
		return
	}
	e.db.Close()
	e.ranges.Close()
	e.state.Store(int32(NotReady))
}
