// Package live polls the server for events newer than the loaded partitions and feeds them
// into the engine's write queue.
package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/xz3dev/quacklytics-sub000/code/metrics"
	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// Feed returns events recorded after since
type Feed interface {
	RecentEvents(ctx context.Context, since time.Time) ([]typesdb.AnalyticsEvent, error)
}

// Sink accepts events for storage
type Sink interface {
	Enqueue(ctx context.Context, events ...typesdb.AnalyticsEvent) error
}

type Options struct {
	Interval   time.Duration
	MaxBackoff time.Duration
	// Since is the initial cursor; events at or before it are assumed loaded
	Since   time.Time
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

type Poller struct {
	feed     Feed
	sink     Sink
	interval time.Duration
	backoff  *backoff.Backoff
	metrics  *metrics.Metrics
	log      *zap.Logger

	mu     sync.Mutex
	cursor time.Time
}

func New(feed Feed, sink Sink, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.MaxBackoff < opts.Interval {
		opts.MaxBackoff = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		feed:     feed,
		sink:     sink,
		interval: opts.Interval,
		backoff: &backoff.Backoff{
			Min:    opts.Interval,
			Max:    opts.MaxBackoff,
			Factor: 2,
			Jitter: true,
		},
		metrics: opts.Metrics,
		log:     logger.Named("live"),
		cursor:  opts.Since.UTC(),
	}
}

// Cursor is the newest event timestamp seen so far
func (p *Poller) Cursor() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Advance moves the cursor forward to t; it never moves back
func (p *Poller) Advance(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.After(p.cursor) {
		p.cursor = t.UTC()
	}
}

// Poll fetches one round of events and enqueues them. The cursor only advances once the
// events are enqueued.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	since := p.Cursor()
	events, err := p.feed.RecentEvents(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	if err := p.sink.Enqueue(ctx, events...); err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	newest := since
	for _, ev := range events {
		if ev.Timestamp.After(newest) {
			newest = ev.Timestamp
		}
	}
	p.Advance(newest)
	p.metrics.ObserveLiveEvents(len(events))
	return len(events), nil
}

// Run polls until ctx is done. Failed rounds back off exponentially up to MaxBackoff.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("live polling started", zap.Duration("interval", p.interval), zap.Time("since", p.Cursor()))
	for {
		wait := p.interval
		n, err := p.Poll(ctx)
		switch {
		case err != nil:
			wait = p.backoff.Duration()
			p.log.Warn("live poll failed", zap.Error(err), zap.Duration("retry_in", wait))
		default:
			p.backoff.Reset()
			if n > 0 {
				p.log.Debug("live events queued", zap.Int("events", n), zap.Time("cursor", p.Cursor()))
			}
		}

		select {
		case <-ctx.Done():
			p.log.Info("live polling stopped")
			return
		case <-time.After(wait):
		}
	}
}
