package db

import (
	"sync"
	"time"

	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// WriteQueue buffers live events for a single table until a batch is due
type WriteQueue struct {
	mu           sync.Mutex
	tableName    string
	queue        map[string]int // event id -> index in pending
	pending      []typesdb.AnalyticsEvent
	lastFlushed  time.Time
	batchSize    int
	flushTimer   time.Duration // now just used to store the interval
	readyToWrite bool          // indicates if queue is ready to be flushed
	isWriting    bool          // prevents concurrent flushes
}

// NewWriteQueue creates a new write queue for a specific table
func NewWriteQueue(tableName string, batchSize int, flushTimer time.Duration) *WriteQueue {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &WriteQueue{
		tableName:   tableName,
		queue:       make(map[string]int),
		lastFlushed: time.Now(),
		batchSize:   batchSize,
		flushTimer:  flushTimer,
	}
}

// Add queues a new operation. An event already queued under the same id is replaced in place.
func (wq *WriteQueue) Add(op typesdb.WriteOp) {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	key := op.Key
	if key == "" {
		key = op.Event.ID
	}
	if idx, ok := wq.queue[key]; ok {
		wq.pending[idx] = op.Event
	} else {
		wq.queue[key] = len(wq.pending)
		wq.pending = append(wq.pending, op.Event)
	}
	if len(wq.pending) >= wq.batchSize {
		wq.readyToWrite = true
	}
}

// Len returns the number of queued events
func (wq *WriteQueue) Len() int {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return len(wq.pending)
}

// IsReadyToWrite returns whether the queue is ready to be flushed
func (wq *WriteQueue) IsReadyToWrite() bool {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return wq.readyToWrite
}

// GetFlushInterval returns the current flush interval
func (wq *WriteQueue) GetFlushInterval() time.Duration {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return wq.flushTimer
}

// Flush drains the queue into batches of at most batchSize events. The queue stays in the
// writing state until Done is called, so a second Flush returns nil while the batches are
// still being written.
func (wq *WriteQueue) Flush(force ...bool) []typesdb.Batch {
	// CAREFUL. This function LOCKS the mutex.
	if !wq.ShouldFlush(force...) {
		return nil
	}

	wq.mu.Lock()
	events := wq.pending
	wq.pending = nil
	wq.queue = make(map[string]int)
	wq.lastFlushed = time.Now()
	wq.mu.Unlock()

	var batches []typesdb.Batch
	for start := 0; start < len(events); start += wq.batchSize {
		end := min(start+wq.batchSize, len(events))
		batches = append(batches, typesdb.Batch{
			Table:  wq.tableName,
			Events: events[start:end],
		})
	}
	return batches
}

// Done ends the write started by a successful Flush
func (wq *WriteQueue) Done() {
	wq.mu.Lock()
	wq.isWriting = false
	wq.mu.Unlock()
}

// Busy reports whether events are queued or a flushed batch is still being written
func (wq *WriteQueue) Busy() bool {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return wq.isWriting || len(wq.pending) > 0
}

// ShouldFlush determines if a flush should occur and sets up the writing state
func (wq *WriteQueue) ShouldFlush(force ...bool) bool {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	shouldForce := len(force) > 0 && force[0]

	// If we're already writing, don't flush
	if wq.isWriting {
		return false
	}
	if len(wq.pending) == 0 {
		return false
	}

	timeBasedFlush := time.Since(wq.lastFlushed) >= wq.flushTimer
	if !shouldForce && !wq.readyToWrite && !timeBasedFlush {
		return false
	}

	wq.isWriting = true
	wq.readyToWrite = false
	return true
}
