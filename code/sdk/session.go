// Package sdk wires the analytics components into a Session, the project-scoped object
// every consumer (API, CLI) works through.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xz3dev/quacklytics-sub000/code/cache"
	"github.com/xz3dev/quacklytics-sub000/code/catalog"
	"github.com/xz3dev/quacklytics-sub000/code/config"
	"github.com/xz3dev/quacklytics-sub000/code/core/charts"
	"github.com/xz3dev/quacklytics-sub000/code/core/queries"
	"github.com/xz3dev/quacklytics-sub000/code/engine"
	"github.com/xz3dev/quacklytics-sub000/code/live"
	"github.com/xz3dev/quacklytics-sub000/code/metrics"
	"github.com/xz3dev/quacklytics-sub000/code/query"
	"github.com/xz3dev/quacklytics-sub000/code/syncer"
	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// ErrNoData is returned by chart rendering when no range was given and nothing is loaded
var ErrNoData = errors.New("no events loaded")

// Session owns one project's cache, engine and sync state
type Session struct {
	ID      string
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics

	cache  *cache.Cache
	engine *engine.Engine
	source catalog.Source
	client *catalog.Client // set for the http source only
	syncer *syncer.Syncer
	live   *live.Poller

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open builds a session from cfg. The engine connection is opened eagerly; if that fails
// the session is still returned and its engine reports ErrNotReady.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	log := logger.With(zap.String("session", id))

	s := &Session{
		ID:      id,
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
	}

	source, err := s.buildSource(ctx)
	if err != nil {
		return nil, err
	}
	s.source = source

	scratch := cfg.Engine.ScratchDir
	if scratch == "" {
		scratch = filepath.Join(os.TempDir(), "quacklytics", id)
	}
	s.cache = cache.New(cfg.Cache.Path, log)
	s.engine = engine.New(engine.Config{
		Path:          cfg.Engine.Path,
		Threads:       cfg.Engine.Threads,
		BatchSize:     cfg.Engine.BatchSize,
		FlushInterval: cfg.Engine.FlushInterval,
		ScratchDir:    scratch,
	}, log, s.metrics)
	if err := s.engine.Open(ctx); err != nil {
		log.Warn("engine unavailable, queries will fail until restart", zap.Error(err))
	}

	s.syncer = syncer.New(source, s.cache, syncer.Options{
		Concurrency: cfg.Sync.Concurrency,
		Importer:    s.engine,
		Metrics:     s.metrics,
		Logger:      log,
	})

	if cfg.Live.Enabled && s.client != nil {
		s.live = live.New(s.client, s.engine, live.Options{
			Interval:   cfg.Live.Interval,
			MaxBackoff: cfg.Live.MaxBackoff,
			Metrics:    s.metrics,
			Logger:     log,
		})
	}
	return s, nil
}

func (s *Session) buildSource(ctx context.Context) (catalog.Source, error) {
	src := s.cfg.Source
	switch src.Kind {
	case config.SourceHTTP:
		s.client = catalog.NewClient(http.DefaultClient, src.URL, src.Token)
		return s.client, nil
	case config.SourceS3:
		return catalog.NewS3Source(ctx, catalog.S3Config{
			Bucket:          src.S3.Bucket,
			Prefix:          src.S3.Prefix,
			Region:          src.S3.Region,
			Endpoint:        src.S3.Endpoint,
			UsePathStyle:    src.S3.UsePathStyle,
			AccessKeyID:     src.S3.AccessKeyID,
			SecretAccessKey: src.S3.SecretAccessKey,
		}, s.log)
	case config.SourceDir:
		return catalog.NewDirSource(src.Dir), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

// Metrics returns the session's Prometheus collectors
func (s *Session) Metrics() *metrics.Metrics {
	return s.metrics
}

// EngineState reports the engine readiness
func (s *Session) EngineState() engine.State {
	return s.engine.State()
}

// Warm imports partitions already in the cache that the engine does not hold yet
func (s *Session) Warm(ctx context.Context) (engine.ImportSummary, error) {
	return s.syncer.LoadCached(ctx)
}

// Sync runs one sync cycle for the configured event type
func (s *Session) Sync(ctx context.Context) (*syncer.Result, error) {
	return s.syncer.Sync(ctx, s.cfg.Sync.EventType)
}

// Query runs an ad hoc query
func (s *Session) Query(ctx context.Context, req queries.RunRequest) (*queries.RunResponse, error) {
	return queries.Run(ctx, s, req)
}

// RunQuery executes q on the engine
func (s *Session) RunQuery(ctx context.Context, q query.Query) ([]map[string]any, error) {
	return s.engine.RunQuery(ctx, q)
}

// Chart renders a chart. A zero range means the loaded data range.
func (s *Session) Chart(ctx context.Context, req charts.RenderRequest) (*charts.RenderResponse, error) {
	if req.Range.Start.IsZero() || req.Range.End.IsZero() {
		loaded, ok, err := s.engine.TimeRange(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNoData
		}
		if req.Range.Start.IsZero() {
			req.Range.Start = loaded.Start
		}
		if req.Range.End.IsZero() {
			req.Range.End = loaded.End
		}
	}
	return charts.Render(ctx, s, req, s.log, s.metrics)
}

// ChartDefinition renders a saved chart definition
func (s *Session) ChartDefinition(ctx context.Context, def *charts.Definition) (*charts.RenderResponse, error) {
	return s.Chart(ctx, def.Request(typesdb.TimeRange{}))
}

// Range returns the loaded time range; ok is false when nothing is loaded
func (s *Session) Range(ctx context.Context) (typesdb.TimeRange, bool, error) {
	return s.engine.TimeRange(ctx)
}

// Schema returns property types per event type. The http source asks the server; other
// sources derive it from the loaded events.
func (s *Session) Schema(ctx context.Context) (map[string]map[string]string, error) {
	if s.client != nil {
		schema, err := s.client.Schema(ctx)
		if err == nil {
			return schema, nil
		}
		s.log.Warn("server schema unavailable, deriving from loaded events", zap.Error(err))
	}
	return s.engine.Schema(ctx)
}

// Start runs periodic sync and, when enabled, live polling in the background until Close
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.syncer.Run(ctx, s.cfg.Sync.Interval, s.cfg.Sync.EventType, nil)
	}()

	if s.live == nil {
		return
	}
	if r, ok, err := s.engine.TimeRange(ctx); err == nil && ok {
		s.live.Advance(r.End)
	}
	ranges, stop := s.engine.SubscribeRange()
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer stop()
		// live events start where the partitions end
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-ranges:
				if !ok {
					return
				}
				s.live.Advance(r.End)
			}
		}
	}()
	go func() {
		defer s.wg.Done()
		s.live.Run(ctx)
	}()
}

// Close stops background work and releases the engine and cache
func (s *Session) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.engine.Close()
	return s.cache.Close()
}
