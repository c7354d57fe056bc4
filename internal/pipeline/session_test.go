package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/WallDrop/internal/categories"
	"github.com/dharsanguruparan/WallDrop/internal/metadata"
	"github.com/dharsanguruparan/WallDrop/internal/model"
	"github.com/dharsanguruparan/WallDrop/internal/objectstore"
	"github.com/dharsanguruparan/WallDrop/internal/publish"
	"github.com/dharsanguruparan/WallDrop/internal/repository"
	"github.com/dharsanguruparan/WallDrop/internal/upload"
	"github.com/dharsanguruparan/WallDrop/internal/validate"
)

// gatedStore blocks Put for keys containing "slow" until the context ends.
type gatedStore struct {
	*objectstore.Memory
	started chan string
}

func (g *gatedStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, onProgress objectstore.ProgressFunc) error {
	if strings.Contains(key, "slow") {
		onProgress(size / 2)
		g.started <- key
		<-ctx.Done()
		return ctx.Err()
	}
	return g.Memory.Put(ctx, key, body, size, contentType, onProgress)
}

type fixture struct {
	store   *objectstore.Memory
	catalog *repository.Memory
	session *Session
}

func newFixture(t *testing.T, store objectstore.Store, mem *objectstore.Memory, cfg Config) fixture {
	t.Helper()
	catalog := repository.NewMemory()
	deps := Deps{
		Uploader:   upload.NewManager(store, "wallpapers"),
		Publisher:  publish.NewEngine(catalog, publish.WithYield(0)),
		Categories: categories.NewRegistry(catalog, nil),
	}
	cfg.ProgressInterval = 5 * time.Millisecond
	s := NewManager(cfg, deps).Create()
	s.sleep = func(context.Context, time.Duration) {}
	return fixture{store: mem, catalog: catalog, session: s}
}

func memoryFixture(t *testing.T, cfg Config) fixture {
	mem := objectstore.NewMemory("https://cdn.example.com")
	return newFixture(t, mem, mem, cfg)
}

func pngFile(t *testing.T, name string, w, h int) model.SourceFile {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return model.SourceFile{Name: name, Size: int64(buf.Len()), MimeType: "image/png", Data: buf.Bytes()}
}

func addFiles(t *testing.T, s *Session, names ...string) []string {
	t.Helper()
	files := make([]model.SourceFile, 0, len(names))
	for _, n := range names {
		files = append(files, pngFile(t, n, 4, 3))
	}
	var ids []string
	for _, r := range s.Add(files) {
		require.Empty(t, r.Error)
		ids = append(ids, r.ItemID)
	}
	return ids
}

func TestAddQueuesValidFiles(t *testing.T) {
	f := memoryFixture(t, Config{})
	results := f.session.Add([]model.SourceFile{
		pngFile(t, "blue_hour-city.png", 8, 6),
		{Name: "notes.pdf", Size: 10, MimeType: "application/pdf", Data: []byte("x")},
		{Name: "huge.jpg", Size: validate.MaxFileSize + 1, MimeType: "image/jpeg"},
	})
	require.Len(t, results, 3)
	assert.NotEmpty(t, results[0].ItemID)
	assert.Equal(t, "notes.pdf is not a supported image format", results[1].Error)
	assert.Equal(t, "huge.jpg exceeds 10MB limit", results[2].Error)

	items := f.session.Items()
	require.Len(t, items, 1)
	assert.Equal(t, model.StatusIdle, items[0].Status)
	assert.Equal(t, "blue hour city", items[0].Metadata.Title)
	assert.Equal(t, "8x6", items[0].Metadata.Dimensions)
}

func TestUploadDrainsInOrderAndDerivesUnpublished(t *testing.T) {
	f := memoryFixture(t, Config{})
	var keys []string
	f.store.FailPut = func(key string) error {
		keys = append(keys, key)
		return nil
	}
	ids := addFiles(t, f.session, "a.png", "b.png", "c.png")

	summary, err := f.session.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{Succeeded: 3}, summary)

	require.Len(t, keys, 3)
	assert.Contains(t, keys[0], "_"+ids[0]+"_a.png")
	assert.Contains(t, keys[2], "_"+ids[2]+"_c.png")

	for _, item := range f.session.Items() {
		assert.Equal(t, model.StatusSuccess, item.Status)
		assert.Equal(t, 100, item.Progress)
		assert.True(t, item.IsPendingPublication)
		assert.True(t, strings.HasPrefix(item.ObjectURL, "https://cdn.example.com/wallpapers/"))
	}
	unpublished := f.session.Unpublished()
	require.Len(t, unpublished, 3)
	assert.Equal(t, ids[1], unpublished[1].ItemID)
}

func TestUploadContinuesAfterFailure(t *testing.T) {
	f := memoryFixture(t, Config{})
	f.store.FailPut = func(key string) error {
		if strings.HasSuffix(key, "_b.png") {
			return errors.New("connection reset")
		}
		return nil
	}
	ids := addFiles(t, f.session, "a.png", "b.png", "c.png")

	summary, err := f.session.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{Succeeded: 2, Failed: 1}, summary)

	failed, err := f.session.Item(ids[1])
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, failed.Status)
	assert.Contains(t, failed.Error, "connection reset")
	assert.False(t, failed.IsCanceled)
	assert.Len(t, f.session.Unpublished(), 2)
}

func TestUploadRejectsConcurrentDrain(t *testing.T) {
	f := memoryFixture(t, Config{})
	f.session.draining.Store(true)
	_, err := f.session.Upload(context.Background())
	assert.ErrorIs(t, err, ErrDrainInProgress)
}

func TestCancelOneItemKeepsDraining(t *testing.T) {
	mem := objectstore.NewMemory("")
	gate := &gatedStore{Memory: mem, started: make(chan string, 1)}
	f := newFixture(t, gate, mem, Config{})
	ids := addFiles(t, f.session, "a.png", "slow.png", "c.png")

	done := make(chan DrainSummary, 1)
	go func() {
		summary, _ := f.session.Upload(context.Background())
		done <- summary
	}()
	<-gate.started
	require.NoError(t, f.session.Cancel(ids[1]))

	summary := <-done
	assert.Equal(t, DrainSummary{Succeeded: 2, Canceled: 1}, summary)
	item, _ := f.session.Item(ids[1])
	assert.Equal(t, model.StatusError, item.Status)
	assert.True(t, item.IsCanceled)
	assert.Equal(t, model.CanceledMessage, item.Error)
	last, _ := f.session.Item(ids[2])
	assert.Equal(t, model.StatusSuccess, last.Status)
}

func TestCancelIdleItem(t *testing.T) {
	f := memoryFixture(t, Config{})
	ids := addFiles(t, f.session, "a.png", "b.png")
	require.NoError(t, f.session.Cancel(ids[0]))

	summary, err := f.session.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{Succeeded: 1}, summary)
	item, _ := f.session.Item(ids[0])
	assert.True(t, item.IsCanceled)
	assert.ErrorIs(t, f.session.Cancel(ids[1]), ErrInvalidTransition)
}

func TestCancelAllHaltsDrain(t *testing.T) {
	mem := objectstore.NewMemory("")
	gate := &gatedStore{Memory: mem, started: make(chan string, 1)}
	f := newFixture(t, gate, mem, Config{})
	ids := addFiles(t, f.session, "slow.png", "b.png", "c.png")

	done := make(chan DrainSummary, 1)
	go func() {
		summary, _ := f.session.Upload(context.Background())
		done <- summary
	}()
	<-gate.started
	assert.Equal(t, []string{ids[0]}, f.session.CancelAll())

	summary := <-done
	assert.Equal(t, DrainSummary{Canceled: 1, NotStarted: 2}, summary)
	for _, id := range ids[1:] {
		item, _ := f.session.Item(id)
		assert.Equal(t, model.StatusIdle, item.Status)
	}

	// A new drain clears the flag and picks up the remaining items.
	summary, err := f.session.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{Succeeded: 2}, summary)
}

// holdingUploader pauses each Upload before the transfer starts.
type holdingUploader struct {
	Uploader
	entered chan string
	release chan struct{}
}

func (h *holdingUploader) Upload(ctx context.Context, req upload.Request, onProgress func(int)) (upload.Result, error) {
	h.entered <- req.ItemID
	<-h.release
	return h.Uploader.Upload(ctx, req, onProgress)
}

// landingUploader completes the transfer, then waits before reporting it.
type landingUploader struct {
	Uploader
	landed  chan string
	release chan struct{}
}

func (l *landingUploader) Upload(ctx context.Context, req upload.Request, onProgress func(int)) (upload.Result, error) {
	res, err := l.Uploader.Upload(context.WithoutCancel(ctx), req, onProgress)
	l.landed <- req.ItemID
	<-l.release
	return res, err
}

func TestCancelBeforeTransferStartsIsHonoured(t *testing.T) {
	f := memoryFixture(t, Config{})
	hold := &holdingUploader{Uploader: f.session.deps.Uploader, entered: make(chan string, 1), release: make(chan struct{})}
	f.session.deps.Uploader = hold
	ids := addFiles(t, f.session, "a.png")

	done := make(chan DrainSummary, 1)
	go func() {
		summary, _ := f.session.Upload(context.Background())
		done <- summary
	}()
	assert.Equal(t, ids[0], <-hold.entered)
	require.NoError(t, f.session.Cancel(ids[0]))
	close(hold.release)

	assert.Equal(t, DrainSummary{Canceled: 1}, <-done)
	item, _ := f.session.Item(ids[0])
	assert.Equal(t, model.StatusError, item.Status)
	assert.True(t, item.IsCanceled)
	assert.False(t, item.IsPendingPublication)
	assert.Empty(t, f.session.Unpublished())
}

func TestCancelAfterObjectLandedStillCancels(t *testing.T) {
	f := memoryFixture(t, Config{})
	land := &landingUploader{Uploader: f.session.deps.Uploader, landed: make(chan string, 1), release: make(chan struct{})}
	f.session.deps.Uploader = land
	ids := addFiles(t, f.session, "a.png")

	done := make(chan DrainSummary, 1)
	go func() {
		summary, _ := f.session.Upload(context.Background())
		done <- summary
	}()
	<-land.landed
	require.NoError(t, f.session.Cancel(ids[0]))
	close(land.release)

	assert.Equal(t, DrainSummary{Canceled: 1}, <-done)
	item, _ := f.session.Item(ids[0])
	assert.True(t, item.IsCanceled)
	assert.Empty(t, f.session.Unpublished())

	objects, err := f.store.List(context.Background(), "wallpapers")
	require.NoError(t, err)
	assert.Len(t, objects, 1, "the stored object is left for reconciliation")
}

func TestRetryWaitsForDrain(t *testing.T) {
	mem := objectstore.NewMemory("")
	gate := &gatedStore{Memory: mem, started: make(chan string, 1)}
	f := newFixture(t, gate, mem, Config{})
	mem.FailPut = func(key string) error {
		if strings.HasSuffix(key, "_a.png") {
			return errors.New("timeout")
		}
		return nil
	}
	ids := addFiles(t, f.session, "a.png", "slow.png")

	done := make(chan DrainSummary, 1)
	go func() {
		summary, _ := f.session.Upload(context.Background())
		done <- summary
	}()
	<-gate.started

	_, err := f.session.Retry(context.Background(), ids[0])
	assert.ErrorIs(t, err, ErrDrainInProgress)
	failed, _ := f.session.Item(ids[0])
	assert.Equal(t, model.StatusError, failed.Status)

	require.NoError(t, f.session.Cancel(ids[1]))
	assert.Equal(t, DrainSummary{Failed: 1, Canceled: 1}, <-done)

	mem.FailPut = nil
	item, err := f.session.Retry(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, item.Status)
}

func TestRetryFailedItem(t *testing.T) {
	f := memoryFixture(t, Config{})
	var attempts atomic.Int32
	f.store.FailPut = func(string) error {
		if attempts.Add(1) == 1 {
			return errors.New("timeout")
		}
		return nil
	}
	ids := addFiles(t, f.session, "a.png")
	_, err := f.session.Upload(context.Background())
	require.NoError(t, err)

	item, err := f.session.Retry(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, item.Status)
	assert.False(t, item.IsRetrying)
	assert.Empty(t, item.Error)

	_, err = f.session.Retry(context.Background(), ids[0])
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPoolDrainUploadsEverything(t *testing.T) {
	f := memoryFixture(t, Config{Concurrency: 3})
	addFiles(t, f.session, "a.png", "b.png", "c.png", "d.png", "e.png")

	summary, err := f.session.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{Succeeded: 5}, summary)
	assert.Len(t, f.session.Unpublished(), 5)
}

func TestImportRowsMatchesAndRegistersCategories(t *testing.T) {
	f := memoryFixture(t, Config{PartialMatch: metadata.PartialConfirm})
	ids := addFiles(t, f.session, "aurora.png", "nebula_final.png")

	rows := []model.CSVRow{
		{"filename": "aurora.png", "title": "Aurora", "category": "Northern Lights", "price": "2.5", "tags": "sky, night"},
		{"filename": "nebula", "title": "Nebula", "category": "space"},
		{"filename": "", "title": "Orphan"},
	}
	res, err := f.session.ImportRows(context.Background(), rows, "")
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, res.Validation.ValidRows)
	assert.Equal(t, []string{"Row 3: Missing filename"}, res.Validation.Errors)
	require.Len(t, res.NewCategories, 1)
	assert.Equal(t, "northern-lights", res.NewCategories[0].Value)
	assert.Equal(t, 1, res.Match.Exact)
	assert.Equal(t, 1, res.Match.Partial)

	aurora, _ := f.session.Item(ids[0])
	assert.Equal(t, "Aurora", aurora.Metadata.Title)
	assert.Equal(t, "northern-lights", aurora.Metadata.Category)
	assert.Equal(t, 2.5, aurora.Metadata.Price)
	assert.Equal(t, []string{"sky", "night"}, aurora.Metadata.Tags)

	nebula, _ := f.session.Item(ids[1])
	assert.Equal(t, "nebula final", nebula.Metadata.Title, "partial match waits for confirmation")
	pending := f.session.PendingMatches()
	require.Len(t, pending, 1)
	assert.Equal(t, ids[1], pending[0].ItemID)

	nebula, err = f.session.ConfirmPartial(ids[1], true)
	require.NoError(t, err)
	assert.Equal(t, "Nebula", nebula.Metadata.Title)
	assert.Equal(t, "space", nebula.Metadata.Category)
	assert.Empty(t, f.session.PendingMatches())
	_, err = f.session.ConfirmPartial(ids[1], true)
	assert.ErrorIs(t, err, ErrNoPendingMatch)

	stored, err := f.catalog.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "northern-lights", stored[0].Value)
}

func TestImportRowsReportsSheetRowNumbers(t *testing.T) {
	f := memoryFixture(t, Config{PartialMatch: metadata.PartialConfirm})
	ids := addFiles(t, f.session, "aurora.png", "nebula_final.png")

	res, err := f.session.ImportRows(context.Background(), []model.CSVRow{
		{"filename": "ghost.png", "title": ""},
		{"filename": "aurora.png", "title": "Aurora"},
		{"filename": "", "title": "No file"},
		{"filename": "nebula", "title": "Nebula"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, res.Validation.ValidRows)

	require.Len(t, res.Match.Matches, 2)
	assert.Equal(t, ids[0], res.Match.Matches[0].ItemID)
	assert.Equal(t, 2, res.Match.Matches[0].Row)
	pending := f.session.PendingMatches()
	require.Len(t, pending, 1)
	assert.Equal(t, 4, pending[0].Row)

	nebula, err := f.session.ConfirmPartial(ids[1], true)
	require.NoError(t, err)
	assert.Equal(t, "Nebula", nebula.Metadata.Title)
}

func TestImportRowsIgnoresNonFinitePrice(t *testing.T) {
	f := memoryFixture(t, Config{})
	ids := addFiles(t, f.session, "a.png")

	res, err := f.session.ImportRows(context.Background(), []model.CSVRow{
		{"filename": "a.png", "title": "Dawn", "price": "NaN"},
	}, "")
	require.NoError(t, err)
	assert.Empty(t, res.Validation.ValidRows)

	item, _ := f.session.Item(ids[0])
	assert.Zero(t, item.Metadata.Price)
	_, err = json.Marshal(f.session.Items())
	assert.NoError(t, err)
}

func TestImportRowsStrictRejectsWhenNothingValid(t *testing.T) {
	f := memoryFixture(t, Config{})
	ids := addFiles(t, f.session, "a.png")

	res, err := f.session.ImportRows(context.Background(), []model.CSVRow{
		{"filename": "zzz.png", "title": "Nope"},
	}, validate.ModeStrict)
	require.ErrorIs(t, err, validate.ErrImportRejected)
	assert.Empty(t, res.Validation.ValidRows)

	item, _ := f.session.Item(ids[0])
	assert.Equal(t, "a", item.Metadata.Title)
}

func TestApplySharedAndUpdateMetadata(t *testing.T) {
	f := memoryFixture(t, Config{})
	ids := addFiles(t, f.session, "a.png", "b.png")
	price := 3.0
	items := f.session.ApplyShared(metadata.Shared{Category: "Nature", Price: &price})
	for _, item := range items {
		assert.Equal(t, "nature", item.Metadata.Category)
		assert.Equal(t, 3.0, item.Metadata.Price)
	}

	updated, err := f.session.UpdateMetadata(ids[1], model.Metadata{Title: "Forest", Category: "Nature"})
	require.NoError(t, err)
	assert.Equal(t, "Forest", updated.Metadata.Title)
	assert.Equal(t, "4x3", updated.Metadata.Dimensions)
	assert.Equal(t, []string{}, updated.Metadata.Tags)

	_, err = f.session.UpdateMetadata("missing", model.Metadata{})
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestPublishClearsPendingFlag(t *testing.T) {
	f := memoryFixture(t, Config{})
	ids := addFiles(t, f.session, "a.png", "b.png")
	_, err := f.session.UpdateMetadata(ids[0], model.Metadata{Title: "Dawn", Category: "nature", Tags: []string{"sun"}})
	require.NoError(t, err)
	_, err = f.session.Upload(context.Background())
	require.NoError(t, err)

	events, stop := f.session.Events(16)
	defer stop()

	res, err := f.session.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Published)
	assert.Empty(t, f.session.Unpublished())

	doc, err := f.catalog.Get(context.Background(), res.DocumentIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Dawn", doc.Title)
	assert.Equal(t, []string{"sun"}, doc.Tags)

	var types []string
	for len(types) < 2 {
		e := <-events
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{EventPublishProgress, EventPublishFinished}, types)

	res, err = f.session.Publish(context.Background())
	require.NoError(t, err, "publishing again with nothing pending is a no-op")
	assert.Equal(t, 0, res.Published)
	assert.Empty(t, res.DocumentIDs)
	assert.Equal(t, 1, f.catalog.Commits())
}

func TestPublishWithNothingPendingIsNoop(t *testing.T) {
	f := memoryFixture(t, Config{})
	addFiles(t, f.session, "a.png")

	for i := 0; i < 2; i++ {
		res, err := f.session.Publish(context.Background())
		require.NoError(t, err)
		assert.Equal(t, publish.Result{DocumentIDs: []string{}}, res)
	}
	assert.Equal(t, 0, f.catalog.Commits())
}

func TestPublishFailureKeepsItemsPending(t *testing.T) {
	f := memoryFixture(t, Config{})
	addFiles(t, f.session, "a.png")
	_, err := f.session.Upload(context.Background())
	require.NoError(t, err)

	f.catalog.FailCommit = func([]model.CatalogDocument) error { return errors.New("db down") }
	_, err = f.session.Publish(context.Background())
	require.Error(t, err)
	assert.Len(t, f.session.Unpublished(), 1)

	f.catalog.FailCommit = nil
	res, err := f.session.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)
}

func TestRemoveAndClearPublished(t *testing.T) {
	f := memoryFixture(t, Config{})
	ids := addFiles(t, f.session, "a.png", "b.png", "c.png")
	require.NoError(t, f.session.Remove(ids[2]))
	assert.ErrorIs(t, f.session.Remove(ids[2]), ErrItemNotFound)

	_, err := f.session.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, f.session.ClearPublished())
	_, err = f.session.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.session.ClearPublished())
	assert.Empty(t, f.session.Items())
}

func TestProgressIsMonotonic(t *testing.T) {
	f := memoryFixture(t, Config{})
	ids := addFiles(t, f.session, "a.png")
	f.session.mu.Lock()
	f.session.items[ids[0]].Status = model.StatusUploading
	f.session.mu.Unlock()

	f.session.applyProgress(map[string]int{ids[0]: 40})
	f.session.applyProgress(map[string]int{ids[0]: 20})
	item, _ := f.session.Item(ids[0])
	assert.Equal(t, 40, item.Progress)
}

func TestStats(t *testing.T) {
	f := memoryFixture(t, Config{})
	addFiles(t, f.session, "a.png", "b.png")
	f.store.FailPut = func(key string) error {
		if strings.HasSuffix(key, "_b.png") {
			return errors.New("nope")
		}
		return nil
	}
	_, err := f.session.Upload(context.Background())
	require.NoError(t, err)

	st := f.session.Stats()
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Succeeded)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.PendingPublication)
	assert.False(t, st.Draining)
}
