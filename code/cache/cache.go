// Package cache is the durable local store for downloaded partition blobs.
//
// Blobs live snappy-compressed in a single SQLite table keyed by filename, next to the catalog
// checksum and event type filter they were downloaded with. The database is
// opened on first use. A Cache built with an empty path is non-persistent: Save does nothing,
// Get finds nothing and GetAll is empty.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/golang/snappy"
	"go.uber.org/zap"

	"github.com/xz3dev/quacklytics-sub000/code/checksum"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SchemaVersion is stored in PRAGMA user_version. A database carrying a different version is
// dropped and recreated.
const SchemaVersion = 3

const blobsTable = "partition_blobs"

// ErrClosed is returned after Close
var ErrClosed = errors.New("cache closed")

// Origin records what a blob was downloaded as
type Origin struct {
	// Checksum is the catalog checksum of the partition; "" means the checksum of the blob
	Checksum string
	// EventType is the filter the blob was downloaded with; "" means all events
	EventType string
}

// Entry is one cached file
type Entry struct {
	Filename  string
	Blob      []byte
	Checksum  string
	EventType string
	UpdatedAt time.Time
}

type Cache struct {
	path string
	log  *zap.Logger

	once    sync.Once
	initErr error
	mu      sync.RWMutex
	db      *sql.DB
	closed  bool
}

// New returns a cache stored at path; "" makes it non-persistent
func New(path string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{path: path, log: logger.Named("cache")}
}

// Persistent reports whether the cache keeps anything
func (c *Cache) Persistent() bool {
	return c.path != ""
}

func (c *Cache) open(ctx context.Context) (*sql.DB, error) {
	if !c.Persistent() {
		return nil, nil
	}
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	c.once.Do(func() {
		c.initErr = c.init(ctx)
		if c.initErr != nil {
			c.log.Error("cache initialization failed", zap.String("path", c.path), zap.Error(c.initErr))
		}
	})
	if c.initErr != nil {
		return nil, c.initErr
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.db, nil
}

func (c *Cache) init(ctx context.Context) error {
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	dsn := c.path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	if err := migrate(ctx, db, c.log); err != nil {
		db.Close()
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		db.Close()
		return ErrClosed
	}
	c.db = db
	return nil
}

// migrate brings the store to SchemaVersion. Older or newer layouts are discarded; the
// contents are a cache of remote data and can be downloaded again.
func migrate(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != SchemaVersion {
		if version != 0 {
			log.Warn("cache schema version changed, dropping cached blobs",
				zap.Int("found", version),
				zap.Int("want", SchemaVersion))
		}
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+blobsTable); err != nil {
			return fmt.Errorf("drop blobs: %w", err)
		}
	}
	schema := `CREATE TABLE IF NOT EXISTS ` + blobsTable + ` (
		filename TEXT PRIMARY KEY,
		blob BLOB NOT NULL,
		checksum TEXT NOT NULL,
		event_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create blobs: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// Save stores blob under filename with its origin, replacing any previous blob
func (c *Cache) Save(ctx context.Context, filename string, blob []byte, origin Origin) error {
	db, err := c.open(ctx)
	if err != nil || db == nil {
		return err
	}
	sum := origin.Checksum
	if sum == "" {
		sum = checksum.Sum(blob)
	}
	_, err = db.ExecContext(ctx,
		"INSERT OR REPLACE INTO "+blobsTable+" (filename, blob, checksum, event_type, size, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		filename, snappy.Encode(nil, blob), sum, origin.EventType, len(blob), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save %s: %w", filename, err)
	}
	return nil
}

// Get returns the blob stored under filename, or nil when there is none
func (c *Cache) Get(ctx context.Context, filename string) ([]byte, error) {
	db, err := c.open(ctx)
	if err != nil || db == nil {
		return nil, err
	}
	var compressed []byte
	err = db.QueryRowContext(ctx, "SELECT blob FROM "+blobsTable+" WHERE filename = ?", filename).Scan(&compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", filename, err)
	}
	blob, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	return blob, nil
}

// GetAll returns every cached entry ordered by filename. An entry that fails to decode is
// logged and left out.
func (c *Cache) GetAll(ctx context.Context) ([]Entry, error) {
	db, err := c.open(ctx)
	if err != nil || db == nil {
		return []Entry{}, err
	}
	rows, err := db.QueryContext(ctx, "SELECT filename, blob, checksum, event_type, updated_at FROM "+blobsTable)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			name       string
			compressed []byte
			sum        string
			eventType  string
			updated    int64
		)
		if err := rows.Scan(&name, &compressed, &sum, &eventType, &updated); err != nil {
			return nil, err
		}
		blob, err := snappy.Decode(nil, compressed)
		if err != nil {
			c.log.Warn("skipping undecodable cache entry", zap.String("file", name), zap.Error(err))
			continue
		}
		entries = append(entries, Entry{
			Filename:  name,
			Blob:      blob,
			Checksum:  sum,
			EventType: eventType,
			UpdatedAt: time.UnixMilli(updated).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Filename < entries[j].Filename })
	return entries, nil
}

// Delete removes filename from the cache
func (c *Cache) Delete(ctx context.Context, filename string) error {
	db, err := c.open(ctx)
	if err != nil || db == nil {
		return err
	}
	_, err = db.ExecContext(ctx, "DELETE FROM "+blobsTable+" WHERE filename = ?", filename)
	return err
}

// Close releases the database. Later calls fail with ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
