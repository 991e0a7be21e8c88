// Package catalog talks to wherever the partition files live: the analytics server over
// HTTP, an S3 bucket, or a local directory.
package catalog

import (
	"context"
	"fmt"
)

var (
	ErrUnauthorized = fmt.Errorf("catalog unauthorized")
	ErrNotFound     = fmt.Errorf("catalog not found")
)

// Source lists partition checksums and downloads partition blobs
type Source interface {
	// Checksums maps every available filename to its lowercase hex MD5
	Checksums(ctx context.Context) (map[string]string, error)
	// Download returns the bytes of one partition. eventType narrows the export to one event
	// type where the source supports it; "" means all events.
	Download(ctx context.Context, filename, eventType string) ([]byte, error)
}
