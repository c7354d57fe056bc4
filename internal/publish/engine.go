// Package publish turns uploaded wallpapers into catalog documents, committing
// them in atomic batches.
package publish

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/logging"
	"github.com/dharsanguruparan/WallDrop/internal/model"
)

// MaxBatchSize is the largest number of documents committed at once.
const MaxBatchSize = 100

// DefaultYield is the pause between batches.
const DefaultYield = 50 * time.Millisecond

// BatchWriter is the part of the document store the engine needs.
type BatchWriter interface {
	NewID() string
	CommitBatch(ctx context.Context, docs []model.CatalogDocument) error
}

// Notifier is told about every committed batch.
type Notifier interface {
	Published(ctx context.Context, documentIDs, imageURLs []string) error
}

// Counter records pipeline metrics.
type Counter interface {
	Count(ctx context.Context, name string, value int) error
}

// Progress describes the state after a committed batch.
type Progress struct {
	Batch     int `json:"batch"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// Committed is handed to the caller after each successful batch.
type Committed struct {
	ItemIDs     []string
	DocumentIDs []string
	Progress    Progress
}

// Result summarises a publication run.
type Result struct {
	Published   int      `json:"published"`
	Remaining   int      `json:"remaining"`
	DocumentIDs []string `json:"documentIds"`
}

// Lookup returns the current metadata of an item.
type Lookup func(itemID string) (model.Metadata, bool)

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize caps batches at n (at most MaxBatchSize).
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 && n <= MaxBatchSize {
			e.batchSize = n
		}
	}
}

// WithYield sets the pause between batches.
func WithYield(d time.Duration) Option {
	return func(e *Engine) { e.yield = d }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithNotifier announces committed batches.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithMetrics records published counts.
func WithMetrics(c Counter) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

// Engine publishes pending uploads.
type Engine struct {
	store     BatchWriter
	batchSize int
	yield     time.Duration
	now       func() time.Time
	notifier  Notifier
	metrics   Counter
	logger    *zap.Logger
}

// NewEngine constructs an Engine writing to store.
func NewEngine(store BatchWriter, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		batchSize: MaxBatchSize,
		yield:     DefaultYield,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Publish commits pending in batches. After each commit onCommit is called
// before the next batch starts, so callers can clear the pending flag of
// exactly the committed items. A failed commit stops the run: earlier batches
// stay committed and later ones are untouched.
func (e *Engine) Publish(ctx context.Context, pending []model.UnpublishedUpload, lookup Lookup, onCommit func(Committed)) (Result, error) {
	total := len(pending)
	res := Result{Remaining: total, DocumentIDs: []string{}}
	if total == 0 {
		return res, nil
	}
	batch := 0
	for start := 0; start < total; start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("publish canceled: %w", err)
		}
		end := start + e.batchSize
		if end > total {
			end = total
		}
		chunk := pending[start:end]
		now := e.now()
		docs := make([]model.CatalogDocument, 0, len(chunk))
		itemIDs := make([]string, 0, len(chunk))
		docIDs := make([]string, 0, len(chunk))
		urls := make([]string, 0, len(chunk))
		for _, p := range chunk {
			md, ok := lookup(p.ItemID)
			if !ok {
				md = model.Metadata{}
			}
			doc := model.DocumentFromMetadata(e.store.NewID(), p.ObjectURL, md, now)
			docs = append(docs, doc)
			itemIDs = append(itemIDs, p.ItemID)
			docIDs = append(docIDs, doc.ID)
			urls = append(urls, p.ObjectURL)
		}
		if err := e.store.CommitBatch(ctx, docs); err != nil {
			e.logger.Error("publication batch failed",
				zap.Int("batch", batch), zap.Int("size", len(docs)), zap.Int("published", res.Published), zap.Error(err))
			return res, fmt.Errorf("commit batch %d: %w", batch, err)
		}
		res.Published += len(docs)
		res.Remaining = total - res.Published
		res.DocumentIDs = append(res.DocumentIDs, docIDs...)
		progress := Progress{Batch: batch, Completed: res.Published, Total: total, Percent: Percent(res.Published, total)}
		e.logger.Info("publication batch committed",
			zap.Int("batch", batch), zap.Int("size", len(docs)), zap.Int("percent", progress.Percent))
		if onCommit != nil {
			onCommit(Committed{ItemIDs: itemIDs, DocumentIDs: docIDs, Progress: progress})
		}
		e.afterCommit(ctx, docIDs, urls)
		batch++
		if end < total && e.yield > 0 {
			select {
			case <-ctx.Done():
				return res, fmt.Errorf("publish canceled: %w", ctx.Err())
			case <-time.After(e.yield):
			}
		}
	}
	return res, nil
}

// afterCommit runs best-effort side effects; failures are only logged.
func (e *Engine) afterCommit(ctx context.Context, docIDs, urls []string) {
	if e.notifier != nil {
		if err := e.notifier.Published(ctx, docIDs, urls); err != nil {
			e.logger.Warn("publication notification failed", zap.Error(err))
		}
	}
	if e.metrics != nil {
		if err := e.metrics.Count(ctx, "DocumentsPublished", len(docIDs)); err != nil {
			e.logger.Warn("publication metric failed", zap.Error(err))
		}
	}
}

// Percent returns round(completed/total*100).
func Percent(completed, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}
