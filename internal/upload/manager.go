// Package upload transfers queued wallpapers to the object store, one
// cancellable task per item.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/logging"
	"github.com/dharsanguruparan/WallDrop/internal/model"
	"github.com/dharsanguruparan/WallDrop/internal/objectstore"
)

var (
	// ErrCanceled is returned when an operator aborted the transfer.
	ErrCanceled = errors.New(model.CanceledMessage)
	// ErrInFlight is returned when an item already has an active transfer.
	ErrInFlight = errors.New("upload already in flight")
)

// Request is a single transfer.
type Request struct {
	ItemID string
	File   model.SourceFile
}

// Result locates the stored object.
type Result struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for object keys.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(logger) }
}

// Manager owns the cancel handle of every in-flight transfer.
type Manager struct {
	store   objectstore.Store
	prefix  string
	now     func() time.Time
	logger  *zap.Logger
	mu      sync.Mutex
	handles map[string]context.CancelCauseFunc
}

// NewManager constructs a Manager writing under prefix.
func NewManager(store objectstore.Store, prefix string, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		prefix:  prefix,
		now:     time.Now,
		logger:  zap.NewNop(),
		handles: make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Upload streams req.File to the store. onProgress receives
// floor(bytes/total*100) and is only called when that value increases. The
// returned error is ErrCanceled when Cancel or CancelAll aborted the transfer.
func (m *Manager) Upload(ctx context.Context, req Request, onProgress func(pct int)) (Result, error) {
	m.mu.Lock()
	if _, busy := m.handles[req.ItemID]; busy {
		m.mu.Unlock()
		return Result{}, ErrInFlight
	}
	ctx, cancel := context.WithCancelCause(ctx)
	m.handles[req.ItemID] = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.handles, req.ItemID)
		m.mu.Unlock()
		cancel(nil)
	}()

	key := ObjectKey(m.prefix, req.ItemID, m.now(), req.File.Name)
	total := int64(len(req.File.Data))
	var (
		progressMu sync.Mutex
		last       = -1
	)
	report := func(written int64) {
		if onProgress == nil {
			return
		}
		pct := Percent(written, total)
		progressMu.Lock()
		defer progressMu.Unlock()
		if pct > last {
			last = pct
			onProgress(pct)
		}
	}

	err := m.store.Put(ctx, key, bytes.NewReader(req.File.Data), total, req.File.MimeType, report)
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrCanceled) {
			m.logger.Info("upload canceled", zap.String("item", req.ItemID), zap.String("key", key))
			return Result{}, ErrCanceled
		}
		m.logger.Warn("upload failed", zap.String("item", req.ItemID), zap.String("key", key), zap.Error(err))
		return Result{}, fmt.Errorf("upload %s: %w", req.File.Name, err)
	}
	return Result{Key: key, URL: m.store.PublicURL(key)}, nil
}

// Cancel aborts the transfer of itemID. It reports whether one was running.
func (m *Manager) Cancel(itemID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.handles[itemID]
	if ok {
		cancel(ErrCanceled)
	}
	return ok
}

// CancelAll aborts every in-flight transfer and returns the affected ids.
func (m *Manager) CancelAll() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.handles))
	for id, cancel := range m.handles {
		cancel(ErrCanceled)
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Active lists items with a transfer in flight.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ObjectKey derives a collision-free key from the item id, the upload time and
// the source name.
func ObjectKey(prefix, itemID string, at time.Time, name string) string {
	key := fmt.Sprintf("%d_%s_%s", at.UnixMilli(), itemID, objectstore.SafeName(name))
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// Percent returns floor(written/total*100) clamped to [0, 100].
func Percent(written, total int64) int {
	if total <= 0 {
		return 100
	}
	pct := int(written * 100 / total)
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}
