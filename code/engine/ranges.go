package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// RangePublisher keeps the latest loaded time range and fans changes out to subscribers.
// Slow subscribers only ever see the most recent range.
type RangePublisher struct {
	mu      sync.Mutex
	current *typesdb.TimeRange
	subs    map[int]chan typesdb.TimeRange
	next    int
	closed  bool
}

func NewRangePublisher() *RangePublisher {
	return &RangePublisher{subs: make(map[int]chan typesdb.TimeRange)}
}

// Current returns the last published range
func (p *RangePublisher) Current() (typesdb.TimeRange, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return typesdb.TimeRange{}, false
	}
	return *p.current, true
}

// Subscribe returns a channel receiving every subsequent range, primed with the current one,
// and a func that ends the subscription.
func (p *RangePublisher) Subscribe() (<-chan typesdb.TimeRange, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan typesdb.TimeRange, 1)
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	id := p.next
	p.next++
	p.subs[id] = ch
	if p.current != nil {
		ch <- *p.current
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if c, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(c)
			}
		})
	}
}

// Publish stores r and notifies subscribers when it differs from the current range
func (p *RangePublisher) Publish(r typesdb.TimeRange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.current != nil && p.current.Start.Equal(r.Start) && p.current.End.Equal(r.End) {
		return
	}
	p.current = &r
	for _, ch := range p.subs {
		// drop the stale value so the send never blocks
		select {
		case <-ch:
		default:
		}
		ch <- r
	}
}

// Close ends every subscription
func (p *RangePublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}

// TimeRange returns the min and max event timestamp. ok is false when no events are loaded.
func (e *Engine) TimeRange(ctx context.Context) (typesdb.TimeRange, bool, error) {
	database, err := e.conn(ctx, "time_range")
	if err != nil {
		return typesdb.TimeRange{}, false, err
	}
	database.ForceFlushTable(e.events.Name())
	start, end, ok, err := e.events.TimeRange(ctx, database)
	if err != nil {
		return typesdb.TimeRange{}, false, err
	}
	return typesdb.TimeRange{Start: start, End: end}, ok, nil
}

// SubscribeRange follows the loaded time range
func (e *Engine) SubscribeRange() (<-chan typesdb.TimeRange, func()) {
	return e.ranges.Subscribe()
}

// refreshRange recomputes the loaded range and publishes it. It must not flush the write
// queue because it runs from inside queue flushes.
func (e *Engine) refreshRange(ctx context.Context) {
	start, end, ok, err := e.events.TimeRange(ctx, e.db)
	if err != nil {
		e.log.Warn("could not compute time range", zap.Error(err))
		return
	}
	if ok {
		e.ranges.Publish(typesdb.TimeRange{Start: start, End: end})
	}
}
