// Package bootstrap builds the object store, catalog store and ingestion
// services selected by configuration. Every binary starts from here.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	walldropaws "github.com/dharsanguruparan/WallDrop/internal/aws"
	"github.com/dharsanguruparan/WallDrop/internal/catalog"
	"github.com/dharsanguruparan/WallDrop/internal/categories"
	"github.com/dharsanguruparan/WallDrop/internal/config"
	"github.com/dharsanguruparan/WallDrop/internal/database"
	"github.com/dharsanguruparan/WallDrop/internal/gcsstorage"
	"github.com/dharsanguruparan/WallDrop/internal/imageproc"
	"github.com/dharsanguruparan/WallDrop/internal/logging"
	"github.com/dharsanguruparan/WallDrop/internal/metadata"
	"github.com/dharsanguruparan/WallDrop/internal/objectstore"
	"github.com/dharsanguruparan/WallDrop/internal/pipeline"
	"github.com/dharsanguruparan/WallDrop/internal/publish"
	"github.com/dharsanguruparan/WallDrop/internal/reconcile"
	"github.com/dharsanguruparan/WallDrop/internal/repository"
	"github.com/dharsanguruparan/WallDrop/internal/s3storage"
	"github.com/dharsanguruparan/WallDrop/internal/upload"
	"github.com/dharsanguruparan/WallDrop/internal/validate"
)

// App holds the wired services.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Objects    objectstore.Store
	Store      catalog.Store
	Catalog    *catalog.Service
	Categories *categories.Registry
	Uploader   *upload.Manager
	Publisher  *publish.Engine
	Sessions   *pipeline.Manager
	Reconciler *reconcile.Reconciler

	aws     *walldropaws.Clients
	closers []func()
}

// New connects every backend named by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logging.OrNop(logger)}
	if err := app.init(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	objects, err := a.objectStore(ctx)
	if err != nil {
		return err
	}
	a.Objects = objects

	store, err := a.catalogStore(ctx)
	if err != nil {
		return err
	}
	a.Store = store
	a.Catalog = catalog.NewService(store, a.Logger)
	a.Categories = categories.NewRegistry(store, a.Logger)

	opts := []publish.Option{
		publish.WithBatchSize(cfg.Pipeline.PublishBatchSize),
		publish.WithYield(cfg.Pipeline.PublishYield),
		publish.WithLogger(a.Logger),
	}
	var metrics publish.Counter
	if cfg.NotifyQueueURL != "" || cfg.MetricsNamespace != "" {
		clients, err := a.awsClients(ctx)
		if err != nil {
			return err
		}
		if cfg.NotifyQueueURL != "" {
			opts = append(opts, publish.WithNotifier(walldropaws.NewNotifier(clients.SQS, cfg.NotifyQueueURL)))
		}
		if cfg.MetricsNamespace != "" {
			metrics = walldropaws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace)
			opts = append(opts, publish.WithMetrics(metrics))
		}
	}
	a.Publisher = publish.NewEngine(store, opts...)
	a.Uploader = upload.NewManager(objects, cfg.ObjectPrefix, upload.WithLogger(a.Logger))
	a.Sessions = pipeline.NewManager(PipelineConfig(cfg), pipeline.Deps{
		Uploader:   a.Uploader,
		Publisher:  a.Publisher,
		Categories: a.Categories,
		Metrics:    metrics,
		Logger:     a.Logger,
	})
	a.closers = append(a.closers, a.Sessions.Shutdown)
	a.Reconciler = reconcile.New(objects, store, a.Publisher, cfg.ObjectPrefix, a.Logger,
		reconcile.WithGracePeriod(cfg.Reconcile.Grace))
	return nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// PipelineConfig maps configuration onto session settings.
func PipelineConfig(cfg *config.Config) pipeline.Config {
	mode := validate.ModeWarning
	if cfg.Pipeline.StrictImport {
		mode = validate.ModeStrict
	}
	return pipeline.Config{
		Concurrency:      cfg.Pipeline.Concurrency,
		ItemDelay:        cfg.Pipeline.ItemDelay,
		ProgressInterval: cfg.Pipeline.ProgressInterval,
		Preprocess:       cfg.Pipeline.Preprocess,
		Image: imageproc.Options{
			MaxWidth:  cfg.Pipeline.MaxImageWidth,
			MaxHeight: cfg.Pipeline.MaxImageHeight,
		},
		PartialMatch: metadata.ParsePartialPolicy(cfg.Pipeline.PartialMatch),
		ImportMode:   mode,
	}
}

func (a *App) objectStore(ctx context.Context) (objectstore.Store, error) {
	cfg := a.Config
	switch cfg.StorageProvider {
	case config.StorageMemory:
		return objectstore.NewMemory(cfg.PublicBaseURL), nil
	case config.StorageGCS:
		store, err := gcsstorage.New(ctx, cfg.GCSBucket, cfg.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	case config.StorageS3:
		store, err := s3storage.New(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.StorageProvider)
	}
}

func (a *App) catalogStore(ctx context.Context) (catalog.Store, error) {
	cfg := a.Config
	switch cfg.CatalogBackend {
	case config.CatalogMemory:
		return repository.NewMemory(), nil
	case config.CatalogPostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repository.NewPostgres(pool), nil
	case config.CatalogDynamo:
		clients, err := a.awsClients(ctx)
		if err != nil {
			return nil, err
		}
		return repository.NewDynamo(clients.DynamoDB, cfg.DynamoTable, cfg.DynamoCategoryTable), nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.CatalogBackend)
	}
}

func (a *App) awsClients(ctx context.Context) (*walldropaws.Clients, error) {
	if a.aws != nil {
		return a.aws, nil
	}
	clients, err := walldropaws.NewClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("init aws clients: %w", err)
	}
	a.aws = clients
	return clients, nil
}
