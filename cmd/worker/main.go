// Command worker processes background reconciliation tasks and, when an
// interval is configured, schedules them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/bootstrap"
	"github.com/dharsanguruparan/WallDrop/internal/config"
	"github.com/dharsanguruparan/WallDrop/internal/logging"
	"github.com/dharsanguruparan/WallDrop/internal/queue"
	"github.com/dharsanguruparan/WallDrop/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("bootstrap", zap.Error(err))
	}
	defer app.Close()

	redis := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: cfg.Reconcile.Workers,
		Logger:      logger.Sugar(),
	})
	processor := worker.NewProcessor(app.Reconciler, cfg.Reconcile.Mode, logger)

	if cfg.Reconcile.Interval > 0 {
		task, err := queue.NewReconcileTask(queue.ReconcilePayload{Mode: cfg.Reconcile.Mode, RequestedBy: "scheduler"})
		if err != nil {
			logger.Fatal("build reconcile task", zap.Error(err))
		}
		scheduler := asynq.NewScheduler(redis, &asynq.SchedulerOpts{Logger: logger.Sugar()})
		if _, err := scheduler.Register("@every "+cfg.Reconcile.Interval.String(), task); err != nil {
			logger.Fatal("register reconcile schedule", zap.Error(err))
		}
		if err := scheduler.Start(); err != nil {
			logger.Fatal("start scheduler", zap.Error(err))
		}
		defer scheduler.Shutdown()
		logger.Info("reconcile scheduled", zap.Duration("interval", cfg.Reconcile.Interval), zap.String("mode", cfg.Reconcile.Mode))
	}

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(processor.Handler()); err != nil {
		logger.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}
