package seed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xz3dev/quacklytics-sub000/code/db"
	"github.com/xz3dev/quacklytics-sub000/code/db/tables"
	"github.com/xz3dev/quacklytics-sub000/code/partition"
	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

const tsLayout = "2006-01-02 15:04:05"

// WritePartitions groups events by ISO week and renders every group as a Parquet partition
// keyed by its partition file name. scratchDir holds the intermediate files ("" uses the OS
// temp dir).
func WritePartitions(ctx context.Context, events []typesdb.AnalyticsEvent, scratchDir string, logger *zap.Logger) (map[string][]byte, error) {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	database, err := db.NewDB("", logger)
	if err != nil {
		return nil, fmt.Errorf("open staging db: %w", err)
	}
	defer database.Close()

	table := &tables.EventsTable{}
	if err := table.Init(ctx, database); err != nil {
		return nil, fmt.Errorf("create staging table: %w", err)
	}

	keys := make(map[partition.Key]struct{})
	stmts := make([]db.Statement, 0, len(events))
	insert := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?)",
		table.Name(), strings.Join(table.Columns(), ", "))
	for _, e := range events {
		props, err := e.PropertiesJSON()
		if err != nil {
			return nil, fmt.Errorf("encode properties of %s: %w", e.ID, err)
		}
		stmts = append(stmts, db.Statement{
			Query:  insert,
			Params: []any{e.ID, e.Timestamp.UTC(), e.EventType, e.DistinctID, e.PersonID, props},
		})
		keys[partition.KeyFor(e.Timestamp)] = struct{}{}
	}
	if err := database.WriteBatch(ctx, stmts); err != nil {
		return nil, fmt.Errorf("stage events: %w", err)
	}

	out := make(map[string][]byte, len(keys))
	for key := range keys {
		blob, err := exportWeek(ctx, database, table, key, scratchDir)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", key.Name(), err)
		}
		out[key.Name()] = blob
	}
	return out, nil
}

func exportWeek(ctx context.Context, database *db.DB, table *tables.EventsTable, key partition.Key, scratchDir string) ([]byte, error) {
	path := filepath.Join(scratchDir, uuid.NewString()+".parquet")
	defer os.Remove(path)

	query := fmt.Sprintf(
		"COPY (SELECT %s FROM %s WHERE timestamp >= TIMESTAMP '%s' AND timestamp < TIMESTAMP '%s' ORDER BY timestamp, id) TO '%s' (FORMAT PARQUET)",
		strings.Join(table.Columns(), ", "), table.Name(),
		key.Start().Format(tsLayout), key.End().Format(tsLayout),
		strings.ReplaceAll(path, "'", "''"))
	if err := database.Write(ctx, query); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// WriteDir writes partitions as files into dir and returns their names
func WriteDir(dir string, parts map[string][]byte) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(parts))
	for name, blob := range parts {
		if err := os.WriteFile(filepath.Join(dir, name), blob, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CountByDay tallies events per UTC day, keyed by the day's midnight
func CountByDay(events []typesdb.AnalyticsEvent) map[time.Time]int64 {
	counts := make(map[time.Time]int64)
	for _, e := range events {
		counts[e.Timestamp.UTC().Truncate(24*time.Hour)]++
	}
	return counts
}
