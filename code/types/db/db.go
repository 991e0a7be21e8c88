// Package db provides the record types shared by the sync, cache and engine layers.
// These values cross package boundaries, so they carry no behaviour beyond small helpers.
package db

// WriteOp represents one queued event insert
type WriteOp struct {
	Key   string // event id; a later op with the same key replaces the earlier one
	Event AnalyticsEvent
}

// Batch represents a group of events flushed together
type Batch struct {
	Table  string
	Events []AnalyticsEvent
}
