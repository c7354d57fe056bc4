package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/WallDrop/internal/catalog"
	"github.com/dharsanguruparan/WallDrop/internal/model"
)

// Memory is an in-process catalog store guarded by an RWMutex.
type Memory struct {
	mu         sync.RWMutex
	docs       map[string]model.CatalogDocument
	categories []model.CategoryOption
	// FailCommit, when set, is consulted before every CommitBatch.
	FailCommit func(docs []model.CatalogDocument) error
	commits    int
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]model.CatalogDocument)}
}

// NewID implements catalog.Store.
func (m *Memory) NewID() string {
	return uuid.NewString()
}

// CommitBatch implements catalog.Store.
func (m *Memory) CommitBatch(ctx context.Context, docs []model.CatalogDocument) error {
	if m.FailCommit != nil {
		if err := m.FailCommit(docs); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.docs[d.ID] = cloneDoc(d)
	}
	m.commits++
	return nil
}

// Commits counts successful CommitBatch calls.
func (m *Memory) Commits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commits
}

// Get implements catalog.Store.
func (m *Memory) Get(ctx context.Context, id string) (model.CatalogDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return model.CatalogDocument{}, catalog.ErrNotFound
	}
	return cloneDoc(d), nil
}

// Put implements catalog.Store.
func (m *Memory) Put(ctx context.Context, doc model.CatalogDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = cloneDoc(doc)
	return nil
}

// Delete implements catalog.Store.
func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

// DeleteAll implements catalog.Store.
func (m *Memory) DeleteAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.docs)
	m.docs = make(map[string]model.CatalogDocument)
	return n, nil
}

// List implements catalog.Store.
func (m *Memory) List(ctx context.Context, q catalog.Query) (catalog.Page, error) {
	m.mu.RLock()
	docs := make([]model.CatalogDocument, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, cloneDoc(d))
	}
	m.mu.RUnlock()
	return catalog.Paginate(docs, q), nil
}

// ImageURLs implements catalog.Store.
func (m *Memory) ImageURLs(ctx context.Context) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.docs))
	for _, d := range m.docs {
		out[d.ImageURL] = true
	}
	return out, nil
}

// ListCategories implements categories.Store.
func (m *Memory) ListCategories(ctx context.Context) ([]model.CategoryOption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.CategoryOption(nil), m.categories...), nil
}

// AddCategory implements categories.Store; the first writer wins.
func (m *Memory) AddCategory(ctx context.Context, opt model.CategoryOption) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.Value == opt.Value {
			return false, nil
		}
	}
	m.categories = append(m.categories, opt)
	return true, nil
}

func cloneDoc(d model.CatalogDocument) model.CatalogDocument {
	d.Tags = append([]string{}, d.Tags...)
	return d
}
