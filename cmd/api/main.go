// Command api serves the WallDrop HTTP API, either as a local server or as an
// AWS Lambda behind API Gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/api"
	"github.com/dharsanguruparan/WallDrop/internal/auth"
	"github.com/dharsanguruparan/WallDrop/internal/bootstrap"
	"github.com/dharsanguruparan/WallDrop/internal/config"
	"github.com/dharsanguruparan/WallDrop/internal/logging"
	"github.com/dharsanguruparan/WallDrop/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("bootstrap", zap.Error(err))
	}
	defer app.Close()

	var enqueuer queue.Enqueuer
	if cfg.RedisAddr != "" {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		enqueuer = client
	}

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := api.New(api.Deps{
		Catalog:         app.Catalog,
		Categories:      app.Categories,
		Sessions:        app.Sessions,
		Reconciler:      app.Reconciler,
		Queue:           enqueuer,
		Verifier:        auth.NewSigner(cfg.SigningSecret),
		Admins:          auth.NewAllowlist(cfg.Admins),
		MaxRequestBytes: cfg.MaxRequestBytes,
		Logger:          logger,
	})

	if cfg.RunLocal {
		if err := srv.Run(ctx, cfg.Address); err != nil {
			logger.Error("server stopped", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	adapter := ginadapter.New(srv.Router())
	lambda.StartWithOptions(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	}, lambda.WithContext(ctx))
}
