// Package progress coalesces high-frequency progress reports into periodic
// batches.
package progress

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is how often pending updates are delivered.
const DefaultInterval = 250 * time.Millisecond

// Sink receives the latest percentage per item since the previous flush.
type Sink func(updates map[string]int)

// Throttle records the most recent value per key and hands the accumulated
// map to a sink on every tick. Report never blocks on the sink.
type Throttle struct {
	mu       sync.Mutex
	pending  map[string]int
	sink     Sink
	interval time.Duration
}

// NewThrottle builds a Throttle. Call Run to start periodic delivery.
func NewThrottle(interval time.Duration, sink Sink) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttle{pending: make(map[string]int), sink: sink, interval: interval}
}

// Report records pct for id, replacing any undelivered value.
func (t *Throttle) Report(id string, pct int) {
	t.mu.Lock()
	t.pending[id] = pct
	t.mu.Unlock()
}

// Discard drops any undelivered value for id.
func (t *Throttle) Discard(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// Flush delivers pending updates now.
func (t *Throttle) Flush() {
	t.mu.Lock()
	if len(t.pending) == 0 {
		t.mu.Unlock()
		return
	}
	batch := t.pending
	t.pending = make(map[string]int)
	t.mu.Unlock()
	t.sink(batch)
}

// Run flushes every interval until ctx is done, then flushes once more.
func (t *Throttle) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.Flush()
			return
		case <-ticker.C:
			t.Flush()
		}
	}
}
