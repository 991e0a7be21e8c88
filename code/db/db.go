package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// FlushFunc receives every batch drained from a table's write queue
type FlushFunc func(ctx context.Context, events []typesdb.AnalyticsEvent) error

// Statement is one SQL text with its bound parameters
type Statement struct {
	Query  string
	Params []any
}

type DB struct {
	conn    *sql.DB
	ctx     context.Context
	cancel  context.CancelFunc
	log     *zap.Logger
	mu      sync.Mutex
	wqMap   map[string]*WriteQueue
	flushes map[string]FlushFunc
	wg      sync.WaitGroup
}

// extensions loaded into every connection. The bundled DuckDB build does not link them in and
// leaves autoloading off, so the JSON column type and json_* functions need an explicit LOAD.
var extensions = []string{"json", "parquet"}

// NewDB opens the DuckDB database at dbPath ("" keeps it in memory) and verifies the
// connection, without any write queues.
func NewDB(dbPath string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	connector, err := duckdb.NewConnector(dbPath, bootConnection)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	conn := sql.OpenDB(connector)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	db := &DB{
		conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		log:     logger,
		wqMap:   make(map[string]*WriteQueue),
		flushes: make(map[string]FlushFunc),
	}

	return db, nil
}

// bootConnection loads the required extensions, installing them on first use
func bootConnection(execer driver.ExecerContext) error {
	ctx := context.Background()
	for _, ext := range extensions {
		if _, err := execer.ExecContext(ctx, "LOAD "+ext, nil); err == nil {
			continue
		}
		if _, err := execer.ExecContext(ctx, "INSTALL "+ext, nil); err != nil {
			return fmt.Errorf("install %s extension: %w", ext, err)
		}
		if _, err := execer.ExecContext(ctx, "LOAD "+ext, nil); err != nil {
			return fmt.Errorf("load %s extension: %w", ext, err)
		}
	}
	return nil
}

// InitWriteQueue initializes a write queue for a specific table. Drained batches are
// handed to flush, both on size threshold and on every flushInterval tick.
func (db *DB) InitWriteQueue(table string, batchSize int, flushInterval time.Duration, flush FlushFunc) {
	wq := NewWriteQueue(table, batchSize, flushInterval)
	db.mu.Lock()
	db.wqMap[table] = wq
	db.flushes[table] = flush
	db.mu.Unlock()

	db.wg.Add(1)
	go db.startQueueListener(table, wq)
}

// Close flushes all write queues and closes the DB connection.
func (db *DB) Close() {
	db.mu.Lock()
	tables := make([]string, 0, len(db.wqMap))
	for tableName := range db.wqMap {
		tables = append(tables, tableName)
	}
	db.mu.Unlock()

	for _, tableName := range tables {
		db.ForceFlushTable(tableName)
	}

	db.cancel()
	db.wg.Wait()
	if db.conn != nil {
		db.conn.Close()
	}
}

// Query runs a read query after flushing pending writes for the given table.
func (db *DB) Query(ctx context.Context, table string, query string, params ...any) (*sql.Rows, error) {
	// reads must see queued live events
	db.ForceFlushTable(table)
	return db.conn.QueryContext(ctx, query, params...)
}

// Prepare flushes pending writes for the table and prepares query on the pool.
// The caller owns the returned statement and must Close it.
func (db *DB) Prepare(ctx context.Context, table string, query string) (*sql.Stmt, error) {
	db.ForceFlushTable(table)
	return db.conn.PrepareContext(ctx, query)
}

// Write runs a direct write query (e.g. schema setup).
func (db *DB) Write(ctx context.Context, query string, params ...any) error {
	_, err := db.conn.ExecContext(ctx, query, params...)
	return err
}

// QueryRow runs a single row query and returns a *sql.Row
func (db *DB) QueryRow(ctx context.Context, query string, params ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, params...)
}

// Exec runs a direct write query and returns the result
func (db *DB) Exec(ctx context.Context, query string, params ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, params...)
}

// QueueWrite queues an event insert for the table; it is flushed on size or timer.
func (db *DB) QueueWrite(tableName string, event typesdb.AnalyticsEvent) bool {
	wq := db.writeQueue(tableName)
	if wq == nil {
		return false
	}
	wq.Add(typesdb.WriteOp{Key: event.ID, Event: event})
	// Only flush if we hit the batch size threshold
	if wq.IsReadyToWrite() {
		db.flushWriteQueue(wq, tableName, false)
	}
	return true
}

// CreateTable creates a table if it doesn't exist.
func (db *DB) CreateTable(ctx context.Context, tableName string, schema string) error {
	query := "CREATE TABLE IF NOT EXISTS " + tableName + " (" + schema + ")"
	return db.Write(ctx, query)
}

// WriteBatch runs statements in a single transaction.
func (db *DB) WriteBatch(ctx context.Context, stmts []Statement) error {
	return batchExecute(ctx, db.conn, stmts)
}

// GetWriteQueue returns the write queue for a given table, or nil.
func (db *DB) GetWriteQueue(table string) *WriteQueue {
	return db.writeQueue(table)
}

// ForceFlushTable forces a flush of the write queue for a specific table
func (db *DB) ForceFlushTable(tableName string) {
	wq := db.writeQueue(tableName)
	if wq == nil {
		return
	}
	// Keep going until nothing is queued and no other flush is still writing
	for {
		if db.flushWriteQueue(wq, tableName, true) {
			continue
		}
		if !wq.Busy() {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func (db *DB) writeQueue(table string) *WriteQueue {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.wqMap[table]
}

func (db *DB) flushWriteQueue(wq *WriteQueue, tableName string, force bool) bool {
	batches := wq.Flush(force)
	if batches == nil {
		return false
	}
	defer wq.Done()
	db.mu.Lock()
	flush := db.flushes[tableName]
	db.mu.Unlock()

	for _, b := range batches {
		if err := flush(db.ctx, b.Events); err != nil {
			db.log.Warn("write queue flush failed",
				zap.String("table", tableName),
				zap.Int("events", len(b.Events)),
				zap.Error(err))
		}
	}
	return true
}

// batchExecute runs all statements in a single transaction.
func batchExecute(ctx context.Context, conn *sql.DB, stmts []Statement) (err error) {
	if len(stmts) == 0 {
		return nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	// Ensure rollback happens on error
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for i, stmt := range stmts {
		if _, err = tx.ExecContext(ctx, stmt.Query, stmt.Params...); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (db *DB) startQueueListener(tableName string, queue *WriteQueue) {
	defer db.wg.Done()
	timer := time.NewTimer(queue.GetFlushInterval())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			db.flushWriteQueue(queue, tableName, true)
			timer.Reset(queue.GetFlushInterval())
		case <-db.ctx.Done():
			return
		}
	}
}
