package processing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorRunsEveryJobWithinBound(t *testing.T) {
	var (
		mu      sync.Mutex
		seen    []string
		running atomic.Int32
		peak    atomic.Int32
	)
	p := New(2, func(ctx context.Context, job Job) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		mu.Lock()
		seen = append(seen, job.ItemID)
		mu.Unlock()
	}, nil)
	ctx := context.Background()
	p.Start(ctx)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, p.Submit(ctx, Job{ItemID: id}))
	}
	p.Close()

	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, seen)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.ErrorIs(t, p.Submit(ctx, Job{ItemID: "late"}), ErrClosed)
}

func TestSubmitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	p := New(1, func(context.Context, Job) { <-block }, nil)
	p.Start(context.Background())
	require.NoError(t, p.Submit(context.Background(), Job{ItemID: "running"}))
	require.NoError(t, p.Submit(context.Background(), Job{ItemID: "buffered"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Submit(ctx, Job{ItemID: "blocked"}), context.DeadlineExceeded)

	close(block)
	p.Close()
}
