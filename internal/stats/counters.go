// Package stats is the statistics layer (C7): per-worker counters published
// through an atomic pointer and handed off to an aggregator by swap, plus
// the final-report percentile and bandwidth math.
package stats

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// Counters accumulates one worker's outcomes between two swaps. Only the
// worker's own goroutine records into a block, but the aggregator may take
// a snapshot of a block just swapped out while that goroutine is finishing
// a record into it; the request counters therefore use lock-free
// xsync.Counter, and Latencies uses a plain mutex-guarded slice since
// appends there are comparatively rare (one per completed request, not per
// byte).
type Counters struct {
	successfulRequests *xsync.Counter
	failedRequests     *xsync.Counter
	bytesRead          *xsync.Counter
	bytesWritten       *xsync.Counter
	socketsOpened      *xsync.Counter

	mu         sync.Mutex
	latencies  []int64 // nanoseconds
}

// NewCounters returns a fresh, empty block.
func NewCounters() *Counters {
	return &Counters{
		successfulRequests: xsync.NewCounter(),
		failedRequests:     xsync.NewCounter(),
		bytesRead:          xsync.NewCounter(),
		bytesWritten:       xsync.NewCounter(),
		socketsOpened:      xsync.NewCounter(),
	}
}

// RecordSuccess records a 2xx response's latency in nanoseconds.
func (c *Counters) RecordSuccess(latencyNanos int64) {
	c.successfulRequests.Inc()
	c.mu.Lock()
	c.latencies = append(c.latencies, latencyNanos)
	c.mu.Unlock()
}

// RecordFailure records a non-2xx response or a socket/parse error.
// a latency sample is only recorded for completed requests; socket errors
// that never reach a response still count as failed without a latency
// sample only when latencyNanos < 0.
func (c *Counters) RecordFailure(latencyNanos int64) {
	c.failedRequests.Inc()
	if latencyNanos >= 0 {
		c.mu.Lock()
		c.latencies = append(c.latencies, latencyNanos)
		c.mu.Unlock()
	}
}

// AddBytesRead/AddBytesWritten accumulate wire bytes.
func (c *Counters) AddBytesRead(n int64)    { c.bytesRead.Add(n) }
func (c *Counters) AddBytesWritten(n int64) { c.bytesWritten.Add(n) }

// RecordSocketOpened increments the sockets-opened counter.
func (c *Counters) RecordSocketOpened() { c.socketsOpened.Inc() }

// Snapshot is an immutable, read-only view of a swapped-out Counters block.
type Snapshot struct {
	Successful    int64
	Failed        int64
	BytesRead     int64
	BytesWritten  int64
	SocketsOpened int64
	Latencies     []int64
}

func (c *Counters) snapshot() Snapshot {
	c.mu.Lock()
	lat := append([]int64(nil), c.latencies...)
	c.mu.Unlock()
	return Snapshot{
		Successful:    c.successfulRequests.Value(),
		Failed:        c.failedRequests.Value(),
		BytesRead:     c.bytesRead.Value(),
		BytesWritten:  c.bytesWritten.Value(),
		SocketsOpened: c.socketsOpened.Value(),
		Latencies:     lat,
	}
}

// Box holds the atomically-swappable current Counters for one worker. The
// worker's I/O path only ever calls Current; the aggregator only ever calls
// Swap — neither blocks the other.
type Box struct {
	current atomic.Pointer[Counters]
}

// NewBox returns a Box pre-loaded with a fresh, empty Counters block.
func NewBox() *Box {
	b := &Box{}
	b.current.Store(NewCounters())
	return b
}

// Current returns the Counters block currently receiving updates. Safe to
// call concurrently with Swap; never blocks.
func (b *Box) Current() *Counters { return b.current.Load() }

// Swap atomically installs a fresh empty Counters block and returns a
// snapshot of the one it replaced. This is a counter handoff: an
// atomic pointer swap rather than a lock, so the worker's I/O path is never
// blocked by the aggregator.
func (b *Box) Swap() Snapshot {
	fresh := NewCounters()
	old := b.current.Swap(fresh)
	return old.snapshot()
}
