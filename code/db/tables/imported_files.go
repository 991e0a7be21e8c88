package tables

import (
	"context"
	"time"

	"github.com/xz3dev/quacklytics-sub000/code/db"
)

// ImportedFiles records which partition checksum was last imported into the engine, so a
// persistent engine file can skip re-importing unchanged partitions on startup.
type ImportedFiles struct{}

func (t *ImportedFiles) Name() string {
	return "imported_files"
}

func (t *ImportedFiles) Schema() string {
	return `
		filename VARCHAR NOT NULL PRIMARY KEY,
		checksum VARCHAR NOT NULL,
		imported_at TIMESTAMP NOT NULL
	`
}

// Init creates the imported_files table.
func (t *ImportedFiles) Init(ctx context.Context, db *db.DB) error {
	return db.CreateTable(ctx, t.Name(), t.Schema())
}

// SetChecksum records the checksum imported for filename
func (t *ImportedFiles) SetChecksum(ctx context.Context, db *db.DB, filename, checksum string) error {
	query := "INSERT OR REPLACE INTO imported_files (filename, checksum, imported_at) VALUES (?, ?, ?)"
	_, err := db.Exec(ctx, query, filename, checksum, time.Now().UTC())
	return err
}

// GetAll returns every filename -> checksum mapping
func (t *ImportedFiles) GetAll(ctx context.Context, db *db.DB) (map[string]string, error) {
	rows, err := db.Query(ctx, "", "SELECT filename, checksum FROM imported_files")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mappings := make(map[string]string)
	for rows.Next() {
		var filename, checksum string
		if err := rows.Scan(&filename, &checksum); err != nil {
			return nil, err
		}
		mappings[filename] = checksum
	}
	return mappings, rows.Err()
}
