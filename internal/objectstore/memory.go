package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Memory keeps objects in a map guarded by an RWMutex. It serves tests and
// dry runs of the CLI.
type Memory struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]memoryObject
	// chunk controls how many bytes are copied per progress step.
	chunk int
	// FailPut, when set, is consulted before every Put.
	FailPut func(key string) error
}

// NewMemory constructs a Memory store whose public URLs start with baseURL.
func NewMemory(baseURL string) *Memory {
	if baseURL == "" {
		baseURL = "memory://wallpapers"
	}
	return &Memory{baseURL: baseURL, objects: make(map[string]memoryObject), chunk: 32 * 1024}
}

// Put implements Store. It honours ctx between chunks so a cancel takes
// effect mid-transfer.
func (m *Memory) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, onProgress ProgressFunc) error {
	if m.FailPut != nil {
		if err := m.FailPut(key); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	chunk := make([]byte, m.chunk)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
		n, err := body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			written += int64(n)
			if onProgress != nil {
				onProgress(written)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: buf.Bytes(), contentType: contentType, modified: time.Now().UTC()}
	return nil
}

// PublicURL implements Store.
func (m *Memory) PublicURL(key string) string {
	return JoinURL(m.baseURL, key)
}

// List implements Store, ordering objects by key.
func (m *Memory) List(ctx context.Context, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Object, 0, len(m.objects))
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, Object{Key: key, URL: m.PublicURL(key), Size: int64(len(obj.data)), LastModified: obj.modified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

// Get returns a copy of the stored bytes.
func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), obj.data...), nil
}
