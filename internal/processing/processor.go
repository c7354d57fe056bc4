// Package processing runs item jobs on a fixed number of goroutines fed by a
// bounded channel.
package processing

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/logging"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("processor closed")

// Job identifies the item a worker should handle.
type Job struct {
	ItemID string
}

// Handler processes one job.
type Handler func(ctx context.Context, job Job)

// Processor consumes Jobs with a fixed number of workers.
type Processor struct {
	handle  Handler
	queue   chan Job
	workers int
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New builds a Processor with queue capacity tied to worker count.
func New(workers int, handle Handler, logger *zap.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	return &Processor{
		handle:  handle,
		queue:   make(chan Job, workers),
		workers: workers,
		logger:  logging.OrNop(logger),
	}
}

// Start launches worker goroutines. They exit once Close is called and the
// queue drains, or when ctx is done.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit queues a job, blocking while every worker is busy and the buffer is
// full.
func (p *Processor) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.queue <- job:
		return nil
	}
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (p *Processor) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			p.logger.Debug("job started", zap.Int("worker", id), zap.String("item", job.ItemID))
			p.handle(ctx, job)
		}
	}
}
