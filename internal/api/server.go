// Package api exposes the catalog, the ingestion sessions and the admin
// tooling over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/auth"
	"github.com/dharsanguruparan/WallDrop/internal/catalog"
	"github.com/dharsanguruparan/WallDrop/internal/categories"
	"github.com/dharsanguruparan/WallDrop/internal/logging"
	"github.com/dharsanguruparan/WallDrop/internal/pipeline"
	"github.com/dharsanguruparan/WallDrop/internal/publish"
	"github.com/dharsanguruparan/WallDrop/internal/queue"
	"github.com/dharsanguruparan/WallDrop/internal/reconcile"
)

// Categories lists the known categories.
type Categories interface {
	Snapshot(ctx context.Context) (categories.Set, error)
}

// Reconciler finds and repairs orphaned uploads.
type Reconciler interface {
	Orphans(ctx context.Context) ([]reconcile.Orphan, error)
	PublishOrphans(ctx context.Context, keys []string) (publish.Result, error)
	DeleteOrphans(ctx context.Context, keys []string) (reconcile.DeleteResult, error)
}

// Deps groups the collaborators of the HTTP layer. Queue may be nil when no
// worker is deployed.
type Deps struct {
	Catalog         *catalog.Service
	Categories      Categories
	Sessions        *pipeline.Manager
	Reconciler      Reconciler
	Queue           queue.Enqueuer
	Verifier        auth.TokenVerifier
	Admins          auth.AdminDirectory
	MaxRequestBytes int64
	Logger          *zap.Logger
}

// Server exposes HTTP endpoints for the catalog and ingestion.
type Server struct {
	Deps
	logger *zap.Logger
}

// New constructs a Server.
func New(deps Deps) *Server {
	if deps.MaxRequestBytes <= 0 {
		deps.MaxRequestBytes = 256 << 20
	}
	return &Server{Deps: deps, logger: logging.OrNop(deps.Logger)}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog(), cors())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/catalog", s.listCatalog)
	r.GET("/catalog/:id", s.getWallpaper)
	r.GET("/categories", s.listCategories)

	admin := r.Group("/", auth.RequireAdmin(s.Verifier, s.Admins))
	admin.POST("/catalog", s.createWallpaper)
	admin.PUT("/catalog/:id", s.updateWallpaper)
	admin.DELETE("/catalog/:id", s.deleteWallpaper)
	admin.DELETE("/catalog", s.deleteAllWallpapers)
	admin.GET("/export/catalog.xlsx", s.exportCatalog)
	admin.GET("/ingest/template", s.template)

	ingest := admin.Group("/ingest/sessions")
	ingest.GET("", s.listSessions)
	ingest.POST("", s.createSession)
	ingest.GET("/:id", s.getSession)
	ingest.DELETE("/:id", s.closeSession)
	ingest.POST("/:id/files", s.addFiles)
	ingest.PATCH("/:id/items/:item", s.updateItem)
	ingest.DELETE("/:id/items/:item", s.removeItem)
	ingest.POST("/:id/items/:item/confirm", s.confirmMatch)
	ingest.POST("/:id/items/:item/cancel", s.cancelItem)
	ingest.POST("/:id/items/:item/retry", s.retryItem)
	ingest.POST("/:id/shared", s.applyShared)
	ingest.POST("/:id/metadata", s.importMetadata)
	ingest.POST("/:id/upload", s.startUpload)
	ingest.POST("/:id/cancel", s.cancelAll)
	ingest.GET("/:id/unpublished", s.unpublished)
	ingest.POST("/:id/publish", s.publish)
	ingest.POST("/:id/clear", s.clearPublished)
	ingest.GET("/:id/events", s.events)

	admin.GET("/admin/orphans", s.listOrphans)
	admin.POST("/admin/orphans/publish", s.publishOrphans)
	admin.POST("/admin/orphans/delete", s.deleteOrphans)
	admin.POST("/admin/reconcile", s.enqueueReconcile)
	return r
}

// Run starts the HTTP server on addr and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
