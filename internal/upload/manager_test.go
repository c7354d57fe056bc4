package upload

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/WallDrop/internal/model"
	"github.com/dharsanguruparan/WallDrop/internal/objectstore"
)

// blockingStore reports half the bytes, then waits for cancellation.
type blockingStore struct {
	*objectstore.Memory
	started chan string
}

func (b *blockingStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, onProgress objectstore.ProgressFunc) error {
	onProgress(size / 2)
	b.started <- key
	<-ctx.Done()
	return ctx.Err()
}

var fixedNow = time.UnixMilli(1700000000000)

func file(name string, size int) model.SourceFile {
	return model.SourceFile{Name: name, Size: int64(size), MimeType: "image/jpeg", Data: make([]byte, size)}
}

func TestUploadSuccess(t *testing.T) {
	store := objectstore.NewMemory("https://cdn.example.com")
	m := NewManager(store, "wallpapers", WithClock(func() time.Time { return fixedNow }))

	var seen []int
	res, err := m.Upload(context.Background(), Request{ItemID: "item-1", File: file("sun set.jpg", 100*1024)}, func(p int) {
		seen = append(seen, p)
	})
	require.NoError(t, err)

	assert.Equal(t, "wallpapers/1700000000000_item-1_sun_set.jpg", res.Key)
	assert.Equal(t, "https://cdn.example.com/wallpapers/1700000000000_item-1_sun_set.jpg", res.URL)
	require.NotEmpty(t, seen)
	assert.Equal(t, 100, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1], "progress must strictly increase")
	}
	assert.Empty(t, m.Active())
}

func TestUploadFailureIsWrapped(t *testing.T) {
	store := objectstore.NewMemory("")
	boom := errors.New("network down")
	store.FailPut = func(string) error { return boom }
	m := NewManager(store, "wallpapers")

	_, err := m.Upload(context.Background(), Request{ItemID: "a", File: file("a.jpg", 10)}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrCanceled)
}

func TestCancelOneLeavesOthersRunning(t *testing.T) {
	store := &blockingStore{Memory: objectstore.NewMemory(""), started: make(chan string, 2)}
	m := NewManager(store, "wallpapers")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	errs := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := m.Upload(ctx, Request{ItemID: id, File: file(id+".jpg", 10)}, nil)
			mu.Lock()
			errs[id] = err
			mu.Unlock()
		}(id)
	}
	<-store.started
	<-store.started
	assert.Equal(t, []string{"a", "b"}, m.Active())

	assert.True(t, m.Cancel("a"))
	assert.Eventually(t, func() bool { return len(m.Active()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"b"}, m.Active())

	stop()
	wg.Wait()
	assert.ErrorIs(t, errs["a"], ErrCanceled)
	assert.NotErrorIs(t, errs["b"], ErrCanceled)
	assert.False(t, m.Cancel("a"))
}

func TestCancelAll(t *testing.T) {
	store := &blockingStore{Memory: objectstore.NewMemory(""), started: make(chan string, 3)}
	m := NewManager(store, "")

	var wg sync.WaitGroup
	results := make(chan error, 3)
	for _, id := range []string{"x", "y", "z"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := m.Upload(context.Background(), Request{ItemID: id, File: file(id, 4)}, nil)
			results <- err
		}(id)
	}
	for i := 0; i < 3; i++ {
		<-store.started
	}
	assert.Equal(t, []string{"x", "y", "z"}, m.CancelAll())
	wg.Wait()
	close(results)
	for err := range results {
		assert.ErrorIs(t, err, ErrCanceled)
	}
}

func TestUploadRejectsDuplicateInFlight(t *testing.T) {
	store := &blockingStore{Memory: objectstore.NewMemory(""), started: make(chan string, 1)}
	m := NewManager(store, "")
	done := make(chan struct{})
	go func() {
		_, _ = m.Upload(context.Background(), Request{ItemID: "a", File: file("a", 4)}, nil)
		close(done)
	}()
	<-store.started
	_, err := m.Upload(context.Background(), Request{ItemID: "a", File: file("a", 4)}, nil)
	assert.ErrorIs(t, err, ErrInFlight)
	m.Cancel("a")
	<-done
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(0, 200))
	assert.Equal(t, 49, Percent(99, 200))
	assert.Equal(t, 100, Percent(200, 200))
	assert.Equal(t, 100, Percent(300, 200))
	assert.Equal(t, 100, Percent(0, 0))
}
