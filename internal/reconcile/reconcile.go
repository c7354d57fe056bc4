// Package reconcile finds stored wallpapers that never reached the catalog
// and either publishes or removes them.
package reconcile

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/logging"
	"github.com/dharsanguruparan/WallDrop/internal/metadata"
	"github.com/dharsanguruparan/WallDrop/internal/model"
	"github.com/dharsanguruparan/WallDrop/internal/objectstore"
	"github.com/dharsanguruparan/WallDrop/internal/publish"
)

// DefaultCategory is assigned to recovered wallpapers.
const DefaultCategory = "uncategorized"

// Modes for Run.
const (
	ModeReport  = "report"
	ModePublish = "publish"
)

// Catalog exposes the image URLs already published.
type Catalog interface {
	ImageURLs(ctx context.Context) (map[string]bool, error)
}

// Publisher commits recovered uploads.
type Publisher interface {
	Publish(ctx context.Context, pending []model.UnpublishedUpload, lookup publish.Lookup, onCommit func(publish.Committed)) (publish.Result, error)
}

// Orphan is a stored object with no catalog entry.
type Orphan struct {
	Key          string    `json:"key"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	Title        string    `json:"title"`
}

// DeleteResult lists what DeleteOrphans did.
type DeleteResult struct {
	Deleted []string `json:"deleted"`
	Skipped []string `json:"skipped,omitempty"`
}

// Report is the outcome of Run.
type Report struct {
	Mode      string   `json:"mode"`
	Orphans   []Orphan `json:"orphans"`
	Published int      `json:"published"`
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithGracePeriod ignores objects modified less than d ago. Ingestion
// sessions keep uploads unpublished until the operator publishes them, so
// without a grace period a sweep in publish mode would catalog those objects
// a second time.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Reconciler) { r.grace = d }
}

// WithClock overrides the time source used for the grace period.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// Reconciler diffs the object store against the catalog.
type Reconciler struct {
	store     objectstore.Store
	catalog   Catalog
	publisher Publisher
	prefix    string
	grace     time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// New constructs a Reconciler scanning objects under prefix.
func New(store objectstore.Store, catalog Catalog, publisher Publisher, prefix string, logger *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:     store,
		catalog:   catalog,
		publisher: publisher,
		prefix:    strings.Trim(prefix, "/"),
		now:       time.Now,
		logger:    logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Orphans lists stored objects whose public URL is not referenced by any
// catalog document, oldest first. Objects inside the grace period are left
// out; objects without a modification time are always considered.
func (r *Reconciler) Orphans(ctx context.Context) ([]Orphan, error) {
	listPrefix := r.prefix
	if listPrefix != "" {
		listPrefix += "/"
	}
	objects, err := r.store.List(ctx, listPrefix)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	known, err := r.catalog.ImageURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog urls: %w", err)
	}
	orphans := []Orphan{}
	var cutoff time.Time
	if r.grace > 0 {
		cutoff = r.now().Add(-r.grace)
	}
	for _, o := range objects {
		if !cutoff.IsZero() && !o.LastModified.IsZero() && o.LastModified.After(cutoff) {
			continue
		}
		url := o.URL
		if url == "" {
			url = r.store.PublicURL(o.Key)
		}
		if known[url] {
			continue
		}
		orphans = append(orphans, Orphan{
			Key:          o.Key,
			URL:          url,
			Size:         o.Size,
			LastModified: o.LastModified,
			Title:        metadata.DefaultTitle(SourceName(o.Key)),
		})
	}
	sort.Slice(orphans, func(i, j int) bool {
		if orphans[i].LastModified.Equal(orphans[j].LastModified) {
			return orphans[i].Key < orphans[j].Key
		}
		return orphans[i].LastModified.Before(orphans[j].LastModified)
	})
	return orphans, nil
}

// PublishOrphans creates catalog documents for the selected orphans, or for
// all of them when keys is empty. Keys that are not orphans are ignored.
func (r *Reconciler) PublishOrphans(ctx context.Context, keys []string) (publish.Result, error) {
	orphans, err := r.pick(ctx, keys)
	if err != nil {
		return publish.Result{}, err
	}
	if len(orphans) == 0 {
		return publish.Result{DocumentIDs: []string{}}, nil
	}
	byKey := make(map[string]Orphan, len(orphans))
	pending := make([]model.UnpublishedUpload, 0, len(orphans))
	for _, o := range orphans {
		byKey[o.Key] = o
		pending = append(pending, model.UnpublishedUpload{ItemID: o.Key, ObjectURL: o.URL})
	}
	lookup := func(key string) (model.Metadata, bool) {
		o, ok := byKey[key]
		if !ok {
			return model.Metadata{}, false
		}
		return model.Metadata{Title: o.Title, Category: DefaultCategory, Tags: []string{}}, true
	}
	res, err := r.publisher.Publish(ctx, pending, lookup, nil)
	r.logger.Info("orphans published", zap.Int("published", res.Published), zap.Int("remaining", res.Remaining), zap.Error(err))
	return res, err
}

// DeleteOrphans removes the selected orphan objects. Keys that are referenced
// by the catalog are skipped.
func (r *Reconciler) DeleteOrphans(ctx context.Context, keys []string) (DeleteResult, error) {
	orphans, err := r.pick(ctx, nil)
	if err != nil {
		return DeleteResult{}, err
	}
	orphaned := make(map[string]bool, len(orphans))
	for _, o := range orphans {
		orphaned[o.Key] = true
	}
	res := DeleteResult{Deleted: []string{}}
	for _, key := range keys {
		if !orphaned[key] {
			res.Skipped = append(res.Skipped, key)
			continue
		}
		if err := r.store.Delete(ctx, key); err != nil {
			return res, fmt.Errorf("delete %s: %w", key, err)
		}
		res.Deleted = append(res.Deleted, key)
	}
	r.logger.Info("orphans deleted", zap.Int("deleted", len(res.Deleted)), zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

// Run performs one sweep. In publish mode every orphan is published.
func (r *Reconciler) Run(ctx context.Context, mode string) (Report, error) {
	orphans, err := r.Orphans(ctx)
	if err != nil {
		return Report{}, err
	}
	report := Report{Mode: mode, Orphans: orphans}
	if mode != ModePublish || len(orphans) == 0 {
		r.logger.Info("reconcile report", zap.Int("orphans", len(orphans)))
		return report, nil
	}
	keys := make([]string, 0, len(orphans))
	for _, o := range orphans {
		keys = append(keys, o.Key)
	}
	res, err := r.PublishOrphans(ctx, keys)
	report.Published = res.Published
	return report, err
}

func (r *Reconciler) pick(ctx context.Context, keys []string) ([]Orphan, error) {
	orphans, err := r.Orphans(ctx)
	if err != nil || len(keys) == 0 {
		return orphans, err
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := orphans[:0]
	for _, o := range orphans {
		if want[o.Key] {
			out = append(out, o)
		}
	}
	return out, nil
}

// SourceName recovers the original file name from an object key written by
// the upload manager ("<prefix>/<millis>_<itemID>_<name>").
func SourceName(key string) string {
	base := path.Base(key)
	parts := strings.SplitN(base, "_", 3)
	if len(parts) == 3 {
		if _, err := strconv.ParseInt(parts[0], 10, 64); err == nil {
			return parts[2]
		}
	}
	return base
}
