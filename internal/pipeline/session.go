// Package pipeline runs an ingestion session: the ordered upload queue, its
// per-item state machine, metadata import and the publication step.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/categories"
	"github.com/dharsanguruparan/WallDrop/internal/imageproc"
	"github.com/dharsanguruparan/WallDrop/internal/logging"
	"github.com/dharsanguruparan/WallDrop/internal/metadata"
	"github.com/dharsanguruparan/WallDrop/internal/model"
	"github.com/dharsanguruparan/WallDrop/internal/processing"
	"github.com/dharsanguruparan/WallDrop/internal/progress"
	"github.com/dharsanguruparan/WallDrop/internal/publish"
	"github.com/dharsanguruparan/WallDrop/internal/upload"
	"github.com/dharsanguruparan/WallDrop/internal/validate"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrItemNotFound       = errors.New("item not found")
	ErrInvalidTransition  = errors.New("invalid item state")
	ErrDrainInProgress    = errors.New("upload already running")
	ErrPublishInProgress  = errors.New("publication already running")
	ErrNoPendingMatch     = errors.New("no partial match awaiting confirmation")
	errSessionUnavailable = errors.New("session closed")
)

// Uploader transfers one item at a time and can abort transfers.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request, onProgress func(int)) (upload.Result, error)
	Cancel(itemID string) bool
	CancelAll() []string
}

// Publisher commits uploads to the catalog.
type Publisher interface {
	Publish(ctx context.Context, pending []model.UnpublishedUpload, lookup publish.Lookup, onCommit func(publish.Committed)) (publish.Result, error)
}

// CategorySource reads and extends the category list.
type CategorySource interface {
	Snapshot(ctx context.Context) (categories.Set, error)
	Ensure(ctx context.Context, values []string) ([]model.CategoryOption, error)
}

// Config tunes a session.
type Config struct {
	Concurrency      int
	ItemDelay        time.Duration
	ProgressInterval time.Duration
	Preprocess       bool
	Image            imageproc.Options
	PartialMatch     metadata.PartialPolicy
	ImportMode       validate.ImportMode
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Uploader   Uploader
	Publisher  Publisher
	Categories CategorySource
	Metrics    publish.Counter
	Logger     *zap.Logger
}

// IntakeResult reports what happened to one offered file.
type IntakeResult struct {
	Name   string `json:"name"`
	ItemID string `json:"itemId,omitempty"`
	Error  string `json:"error,omitempty"`
}

// DrainSummary counts the outcome of an Upload run.
type DrainSummary struct {
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Canceled   int `json:"canceled"`
	NotStarted int `json:"notStarted"`
}

// ImportResult is the outcome of ImportRows.
type ImportResult struct {
	Validation    validate.ImportReport  `json:"validation"`
	Match         metadata.Report        `json:"match"`
	NewCategories []model.CategoryOption `json:"newCategories,omitempty"`
	Summary       string                 `json:"summary"`
}

// Stats summarises a session.
type Stats struct {
	ID                   string    `json:"id"`
	CreatedAt            time.Time `json:"createdAt"`
	Total                int       `json:"total"`
	Idle                 int       `json:"idle"`
	Uploading            int       `json:"uploading"`
	Succeeded            int       `json:"succeeded"`
	Failed               int       `json:"failed"`
	PendingPublication   int       `json:"pendingPublication"`
	AwaitingConfirmation int       `json:"awaitingConfirmation"`
	Draining             bool      `json:"draining"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSucceeded
	outcomeFailed
	outcomeCanceled
)

type pendingMatch struct {
	match metadata.Match
	row   model.CSVRow
}

// Session is one operator's upload queue.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg    Config
	deps   Deps
	logger *zap.Logger

	mu       sync.Mutex
	order    []string
	items    map[string]*model.QueuedItem
	pending  map[string]pendingMatch
	cancelRq map[string]bool
	// transfers holds the cancel func of every item between claim and the
	// end of its transfer.
	transfers map[string]context.CancelCauseFunc
	closed    bool

	canceled   atomic.Bool
	draining   atomic.Bool
	publishing atomic.Bool

	events   *Broadcaster
	throttle *progress.Throttle
	sleep    func(ctx context.Context, d time.Duration)
}

func newSession(id string, now time.Time, cfg Config, deps Deps) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: now,
		cfg:       cfg,
		deps:      deps,
		logger:    logging.OrNop(deps.Logger).With(zap.String("session", id)),
		items:     make(map[string]*model.QueuedItem),
		pending:   make(map[string]pendingMatch),
		cancelRq:  make(map[string]bool),
		transfers: make(map[string]context.CancelCauseFunc),
		events:    NewBroadcaster(),
		sleep:     sleepContext,
	}
	if s.cfg.Concurrency <= 0 {
		s.cfg.Concurrency = 1
	}
	if s.cfg.PartialMatch == "" {
		s.cfg.PartialMatch = metadata.PartialConfirm
	}
	if s.cfg.ImportMode == "" {
		s.cfg.ImportMode = validate.ModeWarning
	}
	s.throttle = progress.NewThrottle(cfg.ProgressInterval, s.applyProgress)
	return s
}

// Events subscribes to the session stream.
func (s *Session) Events(buffer int) (<-chan Event, func()) {
	return s.events.Subscribe(buffer)
}

// Add validates and queues files. Invalid files are reported and not queued.
func (s *Session) Add(files []model.SourceFile) []IntakeResult {
	results := make([]IntakeResult, 0, len(files))
	for _, f := range files {
		verdict := validate.ValidateFile(f)
		if !verdict.Valid {
			results = append(results, IntakeResult{Name: f.Name, Error: verdict.Error})
			continue
		}
		if s.cfg.Preprocess {
			f = imageproc.ProcessForUpload(f, s.cfg.Image)
		}
		dims, err := imageproc.DetectDimensions(f.Data)
		if err != nil {
			s.logger.Debug("dimensions unavailable", zap.String("file", f.Name), zap.Error(err))
		}
		item := &model.QueuedItem{
			ID:     uuid.NewString(),
			Source: f,
			Status: model.StatusIdle,
			Metadata: model.Metadata{
				Title:      metadata.DefaultTitle(f.Name),
				Tags:       []string{},
				Dimensions: dims,
			},
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			results = append(results, IntakeResult{Name: f.Name, Error: errSessionUnavailable.Error()})
			continue
		}
		s.order = append(s.order, item.ID)
		s.items[item.ID] = item
		s.mu.Unlock()
		results = append(results, IntakeResult{Name: f.Name, ItemID: item.ID})
		s.events.Publish(Event{Type: EventItemAdded, ItemID: item.ID, Status: model.StatusIdle})
	}
	return results
}

// Items returns a snapshot of the queue in order.
func (s *Session) Items() []model.QueuedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() []model.QueuedItem {
	out := make([]model.QueuedItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].Clone())
	}
	return out
}

// Item returns one item.
func (s *Session) Item(id string) (model.QueuedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return model.QueuedItem{}, ErrItemNotFound
	}
	return item.Clone(), nil
}

// UpdateMetadata replaces the metadata of an item that is not uploading and
// not yet published.
func (s *Session) UpdateMetadata(id string, md model.Metadata) (model.QueuedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return model.QueuedItem{}, ErrItemNotFound
	}
	if item.Status == model.StatusUploading || (item.Status == model.StatusSuccess && !item.IsPendingPublication) {
		return model.QueuedItem{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, item.Status)
	}
	md = md.Clone()
	md.Category = categories.Normalize(md.Category)
	if md.Tags == nil {
		md.Tags = []string{}
	}
	if md.Dimensions == "" {
		md.Dimensions = item.Metadata.Dimensions
	}
	item.Metadata = md
	delete(s.pending, id)
	return item.Clone(), nil
}

// ApplyShared sets category, price and description on every item.
func (s *Session) ApplyShared(shared metadata.Shared) []model.QueuedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := metadata.ApplyShared(s.snapshotLocked(), shared)
	for _, u := range updated {
		s.items[u.ID].Metadata = u.Metadata
	}
	return s.snapshotLocked()
}

// ImportRows validates rows against the queue and the current category list,
// registers new categories and merges row metadata into matching items.
// mode overrides the session default when set.
func (s *Session) ImportRows(ctx context.Context, rows []model.CSVRow, mode validate.ImportMode) (ImportResult, error) {
	if mode == "" {
		mode = s.cfg.ImportMode
	}
	var known categories.Set
	if s.deps.Categories != nil {
		set, err := s.deps.Categories.Snapshot(ctx)
		if err != nil {
			return ImportResult{}, fmt.Errorf("load categories: %w", err)
		}
		known = set
	}

	s.mu.Lock()
	files := make([]string, 0, len(s.order))
	for _, id := range s.order {
		files = append(files, s.items[id].Source.Name)
	}
	s.mu.Unlock()

	verdicts := make([]validate.RowVerdict, len(rows))
	for i, row := range rows {
		verdicts[i] = validate.ValidateCSVRow(row, i, files, known.Values())
	}
	report, err := validate.EvaluateImport(verdicts, mode)
	result := ImportResult{Validation: report}
	if err != nil {
		return result, err
	}

	if s.deps.Categories != nil && len(report.NewCategory) > 0 {
		created, err := s.deps.Categories.Ensure(ctx, report.NewCategory)
		if err != nil {
			return result, fmt.Errorf("register categories: %w", err)
		}
		result.NewCategories = created
	}

	valid := make([]model.CSVRow, 0, len(report.ValidRows))
	for _, idx := range report.ValidRows {
		valid = append(valid, rows[idx])
	}

	s.mu.Lock()
	updated, match := metadata.MatchRows(s.snapshotLocked(), valid, s.cfg.PartialMatch)
	match.Renumber(report.ValidRows)
	for _, u := range updated {
		if item, ok := s.items[u.ID]; ok && item.Status != model.StatusUploading {
			item.Metadata = u.Metadata
		}
	}
	for _, m := range match.Pending() {
		s.pending[m.ItemID] = pendingMatch{match: m, row: valid[m.Index]}
	}
	s.mu.Unlock()

	result.Match = match
	result.Summary = match.Summary()
	s.logger.Info("metadata imported",
		zap.Int("rows", len(rows)),
		zap.Int("valid", len(valid)),
		zap.String("match", result.Summary),
	)
	return result, nil
}

// PendingMatches lists partial matches awaiting confirmation.
func (s *Session) PendingMatches() []metadata.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]metadata.Match, 0, len(s.pending))
	for _, id := range s.order {
		if p, ok := s.pending[id]; ok {
			out = append(out, p.match)
		}
	}
	return out
}

// ConfirmPartial applies (accept) or discards a partial match.
func (s *Session) ConfirmPartial(id string, accept bool) (model.QueuedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return model.QueuedItem{}, ErrNoPendingMatch
	}
	delete(s.pending, id)
	item, ok := s.items[id]
	if !ok {
		return model.QueuedItem{}, ErrItemNotFound
	}
	if accept {
		item.Metadata = metadata.Merge(item.Metadata, p.row)
	}
	return item.Clone(), nil
}

// Remove drops an item that is not uploading.
func (s *Session) Remove(id string) error {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return ErrItemNotFound
	}
	if item.Status == model.StatusUploading {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot remove %s while uploading", ErrInvalidTransition, id)
	}
	s.removeLocked(id)
	s.mu.Unlock()
	s.events.Publish(Event{Type: EventItemRemoved, ItemID: id})
	return nil
}

// ClearPublished drops every item that is uploaded and published.
func (s *Session) ClearPublished() int {
	s.mu.Lock()
	var removed []string
	for _, id := range append([]string(nil), s.order...) {
		item := s.items[id]
		if item.Status == model.StatusSuccess && !item.IsPendingPublication {
			s.removeLocked(id)
			removed = append(removed, id)
		}
	}
	s.mu.Unlock()
	for _, id := range removed {
		s.events.Publish(Event{Type: EventItemRemoved, ItemID: id})
	}
	return len(removed)
}

func (s *Session) removeLocked(id string) {
	delete(s.items, id)
	delete(s.pending, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Upload drains idle items in queue order. It keeps going after failures
// and stops before the next item once CancelAll was called or ctx is done.
func (s *Session) Upload(ctx context.Context) (DrainSummary, error) {
	if !s.draining.CompareAndSwap(false, true) {
		return DrainSummary{}, ErrDrainInProgress
	}
	defer s.draining.Store(false)
	s.canceled.Store(false)

	stop := s.runThrottle(ctx)
	var summary DrainSummary
	if s.cfg.Concurrency > 1 {
		summary = s.drainPool(ctx)
	} else {
		summary = s.drainSequential(ctx)
	}
	stop()

	summary.NotStarted = s.count(model.StatusIdle)
	s.logger.Info("upload drain finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("canceled", summary.Canceled),
		zap.Int("notStarted", summary.NotStarted),
	)
	s.recordDrain(ctx, summary)
	s.events.Publish(Event{Type: EventDrainFinished, Data: summary})
	return summary, nil
}

func (s *Session) drainSequential(ctx context.Context) DrainSummary {
	var summary DrainSummary
	for {
		if s.canceled.Load() || ctx.Err() != nil {
			return summary
		}
		id, ok := s.claimNext()
		if !ok {
			return summary
		}
		s.publishStatus(id)
		summary.add(s.uploadItem(ctx, id))
		if s.hasIdle() {
			s.sleep(ctx, s.cfg.ItemDelay)
		}
	}
}

func (s *Session) drainPool(ctx context.Context) DrainSummary {
	var (
		mu      sync.Mutex
		summary DrainSummary
	)
	pool := processing.New(s.cfg.Concurrency, func(ctx context.Context, job processing.Job) {
		if s.canceled.Load() || !s.claim(job.ItemID) {
			return
		}
		o := s.uploadItem(ctx, job.ItemID)
		mu.Lock()
		summary.add(o)
		mu.Unlock()
		s.sleep(ctx, s.cfg.ItemDelay)
	}, s.logger)
	pool.Start(ctx)
	for _, id := range s.idleIDs() {
		if s.canceled.Load() {
			break
		}
		if err := pool.Submit(ctx, processing.Job{ItemID: id}); err != nil {
			break
		}
	}
	pool.Close()
	return summary
}

// Cancel aborts one item. Idle items are marked canceled without starting.
func (s *Session) Cancel(id string) error {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return ErrItemNotFound
	}
	switch item.Status {
	case model.StatusIdle:
		markCanceled(item)
		s.mu.Unlock()
		s.publishStatus(id)
		return nil
	case model.StatusUploading:
		s.cancelRq[id] = true
		abort := s.transfers[id]
		s.mu.Unlock()
		if abort != nil {
			abort(upload.ErrCanceled)
		}
		s.deps.Uploader.Cancel(id)
		return nil
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, item.Status)
	}
}

// CancelAll stops the drain before its next item and aborts every in-flight
// transfer. Idle items stay idle. It returns the ids that were uploading.
func (s *Session) CancelAll() []string {
	s.canceled.Store(true)
	s.mu.Lock()
	var (
		uploading []string
		aborts    []context.CancelCauseFunc
	)
	for _, id := range s.order {
		if s.items[id].Status == model.StatusUploading {
			s.cancelRq[id] = true
			uploading = append(uploading, id)
			if abort := s.transfers[id]; abort != nil {
				aborts = append(aborts, abort)
			}
		}
	}
	s.mu.Unlock()
	for _, abort := range aborts {
		abort(upload.ErrCanceled)
	}
	for _, id := range uploading {
		if s.deps.Uploader != nil {
			s.deps.Uploader.Cancel(id)
		}
	}
	return uploading
}

// Retry re-uploads an item in the error state and waits for the outcome. It
// takes the drain slot, so it fails with ErrDrainInProgress while a drain or
// another retry is running.
func (s *Session) Retry(ctx context.Context, id string) (model.QueuedItem, error) {
	if !s.draining.CompareAndSwap(false, true) {
		return model.QueuedItem{}, ErrDrainInProgress
	}
	defer s.draining.Store(false)

	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return model.QueuedItem{}, ErrItemNotFound
	}
	if item.Status != model.StatusError {
		s.mu.Unlock()
		return model.QueuedItem{}, fmt.Errorf("%w: only failed items can be retried", ErrInvalidTransition)
	}
	item.Status = model.StatusUploading
	item.Progress = 0
	item.Error = ""
	item.IsCanceled = false
	item.IsRetrying = true
	s.mu.Unlock()
	s.publishStatus(id)

	stop := s.runThrottle(ctx)
	s.uploadItem(ctx, id)
	stop()
	return s.Item(id)
}

// Unpublished derives the uploads that have not been committed to the
// catalog yet.
func (s *Session) Unpublished() []model.UnpublishedUpload {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.UnpublishedUpload
	for _, id := range s.order {
		item := s.items[id]
		if item.Status == model.StatusSuccess && item.IsPendingPublication {
			out = append(out, model.UnpublishedUpload{ItemID: id, ObjectURL: item.ObjectURL})
		}
	}
	return out
}

// Publish commits every pending upload to the catalog. Each committed batch
// clears the pending flag of its items, so a failed run can be resumed.
func (s *Session) Publish(ctx context.Context) (publish.Result, error) {
	if s.deps.Publisher == nil {
		return publish.Result{}, errors.New("publisher not configured")
	}
	if !s.publishing.CompareAndSwap(false, true) {
		return publish.Result{}, ErrPublishInProgress
	}
	defer s.publishing.Store(false)

	pending := s.Unpublished()
	if len(pending) == 0 {
		return publish.Result{DocumentIDs: []string{}}, nil
	}
	lookup := func(id string) (model.Metadata, bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		item, ok := s.items[id]
		if !ok {
			return model.Metadata{}, false
		}
		return item.Metadata.Clone(), true
	}
	res, err := s.deps.Publisher.Publish(ctx, pending, lookup, func(c publish.Committed) {
		s.mu.Lock()
		for _, id := range c.ItemIDs {
			if item, ok := s.items[id]; ok {
				item.IsPendingPublication = false
			}
		}
		s.mu.Unlock()
		s.events.Publish(Event{Type: EventPublishProgress, Progress: c.Progress.Percent, Data: c.Progress})
	})
	finished := Event{Type: EventPublishFinished, Data: res}
	if err != nil {
		finished.Error = err.Error()
	}
	s.events.Publish(finished)
	return res, err
}

// Stats summarises the queue.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		ID:                   s.ID,
		CreatedAt:            s.CreatedAt,
		Total:                len(s.order),
		AwaitingConfirmation: len(s.pending),
		Draining:             s.draining.Load(),
	}
	for _, id := range s.order {
		item := s.items[id]
		switch item.Status {
		case model.StatusIdle:
			st.Idle++
		case model.StatusUploading:
			st.Uploading++
		case model.StatusSuccess:
			st.Succeeded++
			if item.IsPendingPublication {
				st.PendingPublication++
			}
		case model.StatusError:
			st.Failed++
		}
	}
	return st
}

func (s *Session) close() {
	s.CancelAll()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.events.Close()
}

// claimNext moves the first idle item to uploading.
func (s *Session) claimNext() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		item := s.items[id]
		if item.Status == model.StatusIdle {
			s.startLocked(item)
			return id, true
		}
	}
	return "", false
}

func (s *Session) claim(id string) bool {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok || item.Status != model.StatusIdle {
		s.mu.Unlock()
		return false
	}
	s.startLocked(item)
	s.mu.Unlock()
	s.publishStatus(id)
	return true
}

func (s *Session) startLocked(item *model.QueuedItem) {
	item.Status = model.StatusUploading
	item.Progress = 0
	item.Error = ""
	item.IsCanceled = false
}

func (s *Session) uploadItem(ctx context.Context, id string) outcome {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok || item.Status != model.StatusUploading {
		s.mu.Unlock()
		return outcomeSkipped
	}
	if s.cancelRq[id] {
		delete(s.cancelRq, id)
		markCanceled(item)
		s.mu.Unlock()
		s.publishStatus(id)
		return outcomeCanceled
	}
	req := upload.Request{ItemID: id, File: item.Source}
	tctx, abort := context.WithCancelCause(ctx)
	s.transfers[id] = abort
	s.mu.Unlock()

	res, err := s.deps.Uploader.Upload(tctx, req, func(pct int) { s.throttle.Report(id, pct) })
	s.throttle.Discard(id)
	if err != nil && errors.Is(context.Cause(tctx), upload.ErrCanceled) {
		err = upload.ErrCanceled
	}
	abort(nil)

	s.mu.Lock()
	requested := s.cancelRq[id]
	delete(s.cancelRq, id)
	delete(s.transfers, id)
	item.IsRetrying = false
	var o outcome
	switch {
	case requested && err == nil:
		// The object landed after the cancel; it stays in the store as an
		// orphan for reconciliation.
		markCanceled(item)
		o = outcomeCanceled
		s.logger.Info("upload finished after cancel", zap.String("item", id), zap.String("key", res.Key))
	case err == nil:
		item.Status = model.StatusSuccess
		item.Progress = 100
		item.ObjectURL = res.URL
		item.ObjectKey = res.Key
		item.Error = ""
		item.IsPendingPublication = true
		o = outcomeSucceeded
	case errors.Is(err, upload.ErrCanceled):
		markCanceled(item)
		o = outcomeCanceled
	default:
		item.Status = model.StatusError
		item.Error = err.Error()
		o = outcomeFailed
	}
	s.mu.Unlock()

	if o == outcomeFailed {
		s.logger.Warn("upload failed", zap.String("item", id), zap.String("file", req.File.Name), zap.Error(err))
	}
	s.publishStatus(id)
	return o
}

func markCanceled(item *model.QueuedItem) {
	item.Status = model.StatusError
	item.IsCanceled = true
	item.IsRetrying = false
	item.Error = model.CanceledMessage
}

// applyProgress is the throttle sink. Progress only moves forward and only
// while the item is uploading.
func (s *Session) applyProgress(updates map[string]int) {
	var changed []Event
	s.mu.Lock()
	for id, pct := range updates {
		item, ok := s.items[id]
		if !ok || item.Status != model.StatusUploading || pct <= item.Progress {
			continue
		}
		item.Progress = pct
		changed = append(changed, Event{Type: EventItemProgress, ItemID: id, Status: item.Status, Progress: pct})
	}
	s.mu.Unlock()
	for _, e := range changed {
		s.events.Publish(e)
	}
}

func (s *Session) publishStatus(id string) {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	e := Event{Type: EventItemStatus, ItemID: id, Status: item.Status, Progress: item.Progress, Error: item.Error}
	s.mu.Unlock()
	s.events.Publish(e)
}

// runThrottle flushes progress until the returned stop function is called.
func (s *Session) runThrottle(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.throttle.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (s *Session) idleIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, id := range s.order {
		if s.items[id].Status == model.StatusIdle {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Session) hasIdle() bool {
	return s.count(model.StatusIdle) > 0
}

func (s *Session) count(status model.ItemStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.order {
		if s.items[id].Status == status {
			n++
		}
	}
	return n
}

func (s *Session) recordDrain(ctx context.Context, summary DrainSummary) {
	if s.deps.Metrics == nil {
		return
	}
	for name, v := range map[string]int{
		"UploadsSucceeded": summary.Succeeded,
		"UploadsFailed":    summary.Failed,
		"UploadsCanceled":  summary.Canceled,
	} {
		if v == 0 {
			continue
		}
		if err := s.deps.Metrics.Count(ctx, name, v); err != nil {
			s.logger.Warn("record metric", zap.String("metric", name), zap.Error(err))
		}
	}
}

func (d *DrainSummary) add(o outcome) {
	switch o {
	case outcomeSucceeded:
		d.Succeeded++
	case outcomeFailed:
		d.Failed++
	case outcomeCanceled:
		d.Canceled++
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
