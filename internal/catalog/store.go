// Package catalog defines the wallpaper document store contract and the
// service the HTTP API uses to manage published wallpapers.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/dharsanguruparan/WallDrop/internal/categories"
	"github.com/dharsanguruparan/WallDrop/internal/model"
)

var (
	// ErrNotFound is returned when no document has the requested id.
	ErrNotFound = errors.New("wallpaper not found")
	// ErrConfirmationMismatch guards destructive bulk operations.
	ErrConfirmationMismatch = errors.New("confirmation phrase does not match")
)

// DeleteAllPhrase must be typed verbatim to wipe the catalog.
const DeleteAllPhrase = "DELETE ALL WALLPAPERS"

const (
	DefaultPageSize = 24
	MaxPageSize     = 100
)

// Store is implemented by every document store backend.
type Store interface {
	categories.Store
	// NewID returns a fresh document id.
	NewID() string
	// CommitBatch writes docs atomically: all of them or none.
	CommitBatch(ctx context.Context, docs []model.CatalogDocument) error
	Get(ctx context.Context, id string) (model.CatalogDocument, error)
	// Put creates or replaces a single document.
	Put(ctx context.Context, doc model.CatalogDocument) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int, error)
	List(ctx context.Context, q Query) (Page, error)
	// ImageURLs returns the set of image URLs referenced by any document.
	ImageURLs(ctx context.Context) (map[string]bool, error)
}

// Query selects a page of the catalog, newest first.
type Query struct {
	Search   string `form:"q"`
	Category string `form:"category"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

// Normalize applies defaults and bounds.
func (q Query) Normalize() Query {
	q.Search = strings.TrimSpace(q.Search)
	q.Category = categories.Normalize(q.Category)
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

// Offset is the number of documents before the page.
func (q Query) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// Page is one slice of a listing.
type Page struct {
	Items    []model.CatalogDocument `json:"items"`
	Total    int                     `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"pageSize"`
	HasMore  bool                    `json:"hasMore"`
}

// Matches reports whether doc satisfies the search and category filters.
func (q Query) Matches(doc model.CatalogDocument) bool {
	if q.Category != "" && doc.Category != q.Category {
		return false
	}
	if q.Search == "" {
		return true
	}
	needle := strings.ToLower(q.Search)
	if strings.Contains(strings.ToLower(doc.Title), needle) || strings.Contains(strings.ToLower(doc.Description), needle) {
		return true
	}
	for _, t := range doc.Tags {
		if strings.EqualFold(t, q.Search) {
			return true
		}
	}
	return false
}

// Paginate filters, orders and slices docs in memory. Backends without
// server-side search use it.
func Paginate(docs []model.CatalogDocument, q Query) Page {
	q = q.Normalize()
	matched := make([]model.CatalogDocument, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d) {
			matched = append(matched, d)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	page := Page{Items: []model.CatalogDocument{}, Total: len(matched), Page: q.Page, PageSize: q.PageSize}
	start := q.Offset()
	if start >= len(matched) {
		return page
	}
	end := start + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	page.Items = matched[start:end]
	page.HasMore = end < len(matched)
	return page
}
