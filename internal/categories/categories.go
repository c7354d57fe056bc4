// Package categories merges the built-in wallpaper categories with the ones
// persisted by earlier imports.
package categories

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dharsanguruparan/WallDrop/internal/logging"
	"github.com/dharsanguruparan/WallDrop/internal/model"
)

// Defaults are always available, even with an empty store.
var Defaults = []model.CategoryOption{
	{Label: "Abstract", Value: "abstract"},
	{Label: "Animals", Value: "animals"},
	{Label: "Anime", Value: "anime"},
	{Label: "Architecture", Value: "architecture"},
	{Label: "Cars", Value: "cars"},
	{Label: "City", Value: "city"},
	{Label: "Gaming", Value: "gaming"},
	{Label: "Minimal", Value: "minimal"},
	{Label: "Nature", Value: "nature"},
	{Label: "Space", Value: "space"},
}

// Store persists user-created categories.
type Store interface {
	ListCategories(ctx context.Context) ([]model.CategoryOption, error)
	// AddCategory inserts opt unless its value exists; created reports whether
	// this call won.
	AddCategory(ctx context.Context, opt model.CategoryOption) (created bool, err error)
}

// Normalize returns the canonical category value.
func Normalize(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), "-")
}

// Label derives a display label from a value.
func Label(value string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(value, "-", " "))
}

// Set is an immutable snapshot of known categories.
type Set struct {
	options []model.CategoryOption
	values  map[string]bool
}

// Options returns the categories sorted by label.
func (s Set) Options() []model.CategoryOption {
	return append([]model.CategoryOption(nil), s.options...)
}

// Values returns every canonical value.
func (s Set) Values() []string {
	out := make([]string, 0, len(s.options))
	for _, o := range s.options {
		out = append(out, o.Value)
	}
	return out
}

// Has reports whether value (normalized) is known.
func (s Set) Has(value string) bool {
	return s.values[Normalize(value)]
}

// Registry reads categories from the store on every call; nothing is cached
// between sessions.
type Registry struct {
	store  Store
	logger *zap.Logger
}

// NewRegistry constructs a Registry. store may be nil, leaving only defaults.
func NewRegistry(store Store, logger *zap.Logger) *Registry {
	return &Registry{store: store, logger: logging.OrNop(logger)}
}

// Snapshot loads the current category set.
func (r *Registry) Snapshot(ctx context.Context) (Set, error) {
	set := Set{values: make(map[string]bool)}
	add := func(o model.CategoryOption) {
		o.Value = Normalize(o.Value)
		if o.Value == "" || set.values[o.Value] {
			return
		}
		if o.Label == "" {
			o.Label = Label(o.Value)
		}
		set.values[o.Value] = true
		set.options = append(set.options, o)
	}
	for _, o := range Defaults {
		add(o)
	}
	if r.store != nil {
		stored, err := r.store.ListCategories(ctx)
		if err != nil {
			return Set{}, fmt.Errorf("list categories: %w", err)
		}
		for _, o := range stored {
			add(o)
		}
	}
	sort.Slice(set.options, func(i, j int) bool { return set.options[i].Label < set.options[j].Label })
	return set, nil
}

// Ensure persists every value not yet known. Concurrent writers may race;
// the store keeps the first one.
func (r *Registry) Ensure(ctx context.Context, values []string) ([]model.CategoryOption, error) {
	if r.store == nil || len(values) == 0 {
		return nil, nil
	}
	set, err := r.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var created []model.CategoryOption
	for _, v := range values {
		v = Normalize(v)
		if v == "" || set.values[v] {
			continue
		}
		opt := model.CategoryOption{Label: Label(v), Value: v}
		ok, err := r.store.AddCategory(ctx, opt)
		if err != nil {
			return created, fmt.Errorf("add category %s: %w", v, err)
		}
		set.values[v] = true
		if ok {
			r.logger.Info("category created", zap.String("value", v))
			created = append(created, opt)
		}
	}
	return created, nil
}
