package db

import (
	"encoding/json"
	"time"
)

// AnalyticsEvent is one row of the events table
type AnalyticsEvent struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	EventType  string         `json:"event_type"`
	DistinctID string         `json:"distinct_id"`
	PersonID   string         `json:"person_id"`
	Properties map[string]any `json:"properties"`
}

// PropertiesJSON encodes Properties for the JSON column. A nil map is stored as "{}".
func (e AnalyticsEvent) PropertiesJSON() (string, error) {
	if e.Properties == nil {
		return "{}", nil
	}
	b, err := json.Marshal(e.Properties)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FileMetadata identifies one remote partition file
type FileMetadata struct {
	Name       string     `json:"name"`
	RangeStart time.Time  `json:"range_start"`
	RangeEnd   time.Time  `json:"range_end"`
	ValidUntil *time.Time `json:"valid_until,omitempty"` // only set while the partition's week is still open
	Checksum   string     `json:"checksum"`
	Autoload   bool       `json:"autoload"`
}

// FileDownload is a partition blob fetched from the catalog
type FileDownload struct {
	Filename string `json:"filename"`
	Blob     []byte `json:"-"`
	Checksum string `json:"checksum"`
}

// FileError reports one partition that failed to download, cache or import
type FileError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// TimeRange is an inclusive [Start, End] interval
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
