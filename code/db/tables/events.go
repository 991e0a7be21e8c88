package tables

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xz3dev/quacklytics-sub000/code/db"
)

// EventsTableName is the fixed table every partition and live event lands in
const EventsTableName = "events"

// EventsTable represents the analytics events table. The column order matches the
// partition Parquet layout so imports can use SELECT *.
type EventsTable struct{}

func (t *EventsTable) Name() string {
	return EventsTableName
}

func (t *EventsTable) Schema() string {
	return `
		id VARCHAR NOT NULL PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		event_type VARCHAR NOT NULL,
		distinct_id VARCHAR,
		person_id VARCHAR,
		properties JSON
	`
}

// Columns lists the insert column order.
func (t *EventsTable) Columns() []string {
	return []string{"id", "timestamp", "event_type", "distinct_id", "person_id", "properties"}
}

// Init creates the events table.
func (t *EventsTable) Init(ctx context.Context, db *db.DB) error {
	return db.CreateTable(ctx, t.Name(), t.Schema())
}

// TimeRange returns the earliest and latest event timestamps. ok is false for an empty table.
func (t *EventsTable) TimeRange(ctx context.Context, db *db.DB) (start, end time.Time, ok bool, err error) {
	var minTS, maxTS sql.NullTime
	query := fmt.Sprintf("SELECT MIN(timestamp), MAX(timestamp) FROM %s", t.Name())
	if err := db.QueryRow(ctx, query).Scan(&minTS, &maxTS); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if !minTS.Valid || !maxTS.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return minTS.Time.UTC(), maxTS.Time.UTC(), true, nil
}

// Count returns the number of rows in the table
func (t *EventsTable) Count(ctx context.Context, db *db.DB) (int64, error) {
	var count int64
	err := db.QueryRow(ctx, "SELECT COUNT(*) FROM "+t.Name()).Scan(&count)
	return count, err
}
