// Package syncer keeps the local blob cache and the engine in step with the remote partition
// catalog, downloading only partitions whose checksum changed.
package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xz3dev/quacklytics-sub000/code/cache"
	"github.com/xz3dev/quacklytics-sub000/code/catalog"
	"github.com/xz3dev/quacklytics-sub000/code/checksum"
	"github.com/xz3dev/quacklytics-sub000/code/engine"
	"github.com/xz3dev/quacklytics-sub000/code/metrics"
	"github.com/xz3dev/quacklytics-sub000/code/partition"
	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// BlobStore is the cache the syncer writes downloads into
type BlobStore interface {
	Save(ctx context.Context, filename string, blob []byte, origin cache.Origin) error
	GetAll(ctx context.Context) ([]cache.Entry, error)
}

// Importer loads partition blobs into the engine
type Importer interface {
	ImportParquet(ctx context.Context, files []typesdb.FileDownload) (engine.ImportSummary, error)
	Pending(ctx context.Context, files []typesdb.FileDownload) ([]typesdb.FileDownload, error)
}

// Result summarizes one sync cycle
type Result struct {
	Files      []typesdb.FileMetadata `json:"files"`
	Downloaded []string               `json:"downloaded"`
	Failed     []typesdb.FileError    `json:"failed"`
	Skipped    []string               `json:"skipped"`
}

// Options for New
type Options struct {
	// Concurrency bounds parallel downloads; 0 or less means unbounded
	Concurrency int
	// Importer receives every downloaded blob; nil only fills the cache
	Importer Importer
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type Syncer struct {
	source      catalog.Source
	store       BlobStore
	importer    Importer
	concurrency int
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

func New(source catalog.Source, store BlobStore, opts Options) *Syncer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		source:      source,
		store:       store,
		importer:    opts.Importer,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
		log:         logger.Named("sync"),
		now:         time.Now,
	}
}

// Sync runs one cycle: fetch the server checksums, diff them against the cache, download
// and import what changed. Only a catalog or cache listing failure is returned as an error;
// per-file failures are reported in Result.Failed.
func (s *Syncer) Sync(ctx context.Context, eventType string) (*Result, error) {
	server, err := s.source.Checksums(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	entries, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}

	res := &Result{Downloaded: []string{}, Failed: []typesdb.FileError{}, Skipped: []string{}}

	valid := make(map[string]string, len(server))
	for name, sum := range server {
		if _, ok := partition.Parse(name); !ok {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		valid[name] = checksum.Normalize(sum)
	}
	sort.Strings(res.Skipped)
	if len(res.Skipped) > 0 {
		s.log.Warn("skipping catalog entries with malformed names", zap.Strings("files", res.Skipped))
		s.metrics.ObserveSkipped(len(res.Skipped))
	}

	// a blob counts as current when it was downloaded with this event type filter and the
	// catalog checksum it was downloaded under is still the server's
	local := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.EventType != eventType {
			continue
		}
		sum := e.Checksum
		if sum == "" {
			sum = checksum.Sum(e.Blob)
		}
		local[e.Filename] = checksum.Normalize(sum)
	}

	stale := checksum.Diff(valid, local)
	s.log.Info("sync plan",
		zap.Int("server", len(valid)),
		zap.Int("cached", len(local)),
		zap.Int("download", len(stale)))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for _, name := range stale {
		name := name
		g.Go(func() error {
			sum, err := s.fetch(gctx, name, valid[name], eventType)
			s.metrics.ObserveDownload(err == nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn("partition sync failed", zap.String("file", name), zap.Error(err))
				res.Failed = append(res.Failed, typesdb.FileError{Filename: name, Error: err.Error()})
				return nil
			}
			local[name] = sum
			res.Downloaded = append(res.Downloaded, name)
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(res.Downloaded)
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Filename < res.Failed[j].Filename })

	now := s.now()
	names := make([]string, 0, len(valid))
	for name := range valid {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if local[name] != valid[name] {
			continue
		}
		if meta, ok := partition.Metadata(name, valid[name], now); ok {
			res.Files = append(res.Files, meta)
		}
	}

	s.log.Info("sync finished",
		zap.Int("files", len(res.Files)),
		zap.Int("downloaded", len(res.Downloaded)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

// fetch downloads one partition, caches it under its catalog checksum and hands it to the
// importer. It returns the checksum the cache now holds for it. Import failures count as
// failures of the file even though the blob stays cached.
func (s *Syncer) fetch(ctx context.Context, name, want, eventType string) (string, error) {
	blob, err := s.source.Download(ctx, name, eventType)
	if err != nil {
		return "", err
	}
	// filtered downloads hold a subset of the partition and never match the catalog
	sum := checksum.Sum(blob)
	if eventType == "" && sum != want {
		s.log.Warn("downloaded partition does not match its catalog checksum",
			zap.String("file", name),
			zap.String("want", want),
			zap.String("got", sum))
	}
	stored := want
	if eventType == "" {
		// a corrupt full download stays stale and is fetched again next cycle
		stored = sum
	}
	if err := s.store.Save(ctx, name, blob, cache.Origin{Checksum: stored, EventType: eventType}); err != nil {
		return "", fmt.Errorf("cache: %w", err)
	}
	if s.importer == nil {
		return stored, nil
	}
	summary, err := s.importer.ImportParquet(ctx, []typesdb.FileDownload{{Filename: name, Blob: blob, Checksum: sum}})
	if err != nil {
		return "", fmt.Errorf("import: %w", err)
	}
	if len(summary.Failed) > 0 {
		return "", fmt.Errorf("import: %s", summary.Failed[0].Error)
	}
	return stored, nil
}

// LoadCached imports every cached partition the engine does not hold yet. Sessions call it on
// startup so an in-memory engine is populated before the first sync finishes.
func (s *Syncer) LoadCached(ctx context.Context) (engine.ImportSummary, error) {
	if s.importer == nil {
		return engine.ImportSummary{}, nil
	}
	entries, err := s.store.GetAll(ctx)
	if err != nil {
		return engine.ImportSummary{}, fmt.Errorf("list cache: %w", err)
	}
	files := make([]typesdb.FileDownload, 0, len(entries))
	for _, e := range entries {
		if _, ok := partition.Parse(e.Filename); !ok {
			continue
		}
		files = append(files, typesdb.FileDownload{Filename: e.Filename, Blob: e.Blob, Checksum: checksum.Sum(e.Blob)})
	}
	pending, err := s.importer.Pending(ctx, files)
	if err != nil {
		return engine.ImportSummary{}, err
	}
	if len(pending) == 0 {
		return engine.ImportSummary{}, nil
	}
	s.log.Info("importing cached partitions", zap.Int("files", len(pending)))
	return s.importer.ImportParquet(ctx, pending)
}

// Run syncs immediately and then on every interval tick until ctx is done. onResult, when
// set, receives every successful cycle.
func (s *Syncer) Run(ctx context.Context, interval time.Duration, eventType string, onResult func(*Result)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := s.Sync(ctx, eventType)
		if err != nil {
			s.log.Warn("sync cycle failed", zap.Error(err))
		} else if onResult != nil {
			onResult(res)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
