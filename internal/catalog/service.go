package catalog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/logging"
	"github.com/dharsanguruparan/WallDrop/internal/model"
	"github.com/dharsanguruparan/WallDrop/internal/validate"
)

// Service applies validation and bookkeeping around a Store.
type Service struct {
	store     Store
	validator *validate.Validator
	now       func() time.Time
	logger    *zap.Logger
}

// NewService constructs a Service.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		validator: validate.NewValidator(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logging.OrNop(logger),
	}
}

// Store exposes the underlying document store.
func (s *Service) Store() Store {
	return s.store
}

// Create validates in and stores a new document.
func (s *Service) Create(ctx context.Context, in validate.CatalogInput) (model.CatalogDocument, error) {
	if err := s.validator.Catalog(in); err != nil {
		return model.CatalogDocument{}, err
	}
	doc := model.DocumentFromMetadata(s.store.NewID(), in.ImageURL, in.Metadata(), s.now())
	if err := s.store.Put(ctx, doc); err != nil {
		return model.CatalogDocument{}, fmt.Errorf("create wallpaper: %w", err)
	}
	s.logger.Info("wallpaper created", zap.String("id", doc.ID))
	return doc, nil
}

// Update replaces the editable fields of an existing document.
func (s *Service) Update(ctx context.Context, id string, in validate.CatalogInput) (model.CatalogDocument, error) {
	if err := s.validator.Catalog(in); err != nil {
		return model.CatalogDocument{}, err
	}
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return model.CatalogDocument{}, err
	}
	doc := model.DocumentFromMetadata(id, in.ImageURL, in.Metadata(), s.now())
	doc.CreatedAt = existing.CreatedAt
	if err := s.store.Put(ctx, doc); err != nil {
		return model.CatalogDocument{}, fmt.Errorf("update wallpaper %s: %w", id, err)
	}
	return doc, nil
}

// Get returns one document.
func (s *Service) Get(ctx context.Context, id string) (model.CatalogDocument, error) {
	return s.store.Get(ctx, id)
}

// List returns a page of the catalog.
func (s *Service) List(ctx context.Context, q Query) (Page, error) {
	return s.store.List(ctx, q.Normalize())
}

// Delete removes one document.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("wallpaper deleted", zap.String("id", id))
	return nil
}

// DeleteAll wipes the catalog when phrase equals DeleteAllPhrase.
func (s *Service) DeleteAll(ctx context.Context, phrase string) (int, error) {
	if phrase != DeleteAllPhrase {
		return 0, ErrConfirmationMismatch
	}
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return n, fmt.Errorf("delete all wallpapers: %w", err)
	}
	s.logger.Warn("catalog wiped", zap.Int("deleted", n))
	return n, nil
}

// All pages through the whole catalog.
func (s *Service) All(ctx context.Context) ([]model.CatalogDocument, error) {
	var out []model.CatalogDocument
	q := Query{Page: 1, PageSize: MaxPageSize}
	for {
		page, err := s.store.List(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if !page.HasMore {
			return out, nil
		}
		q.Page++
	}
}
