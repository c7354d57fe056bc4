// Package worker handles asynq tasks in the background worker binary.
package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/logging"
	"github.com/dharsanguruparan/WallDrop/internal/queue"
	"github.com/dharsanguruparan/WallDrop/internal/reconcile"
)

// Sweeper runs one reconciliation pass.
type Sweeper interface {
	Run(ctx context.Context, mode string) (reconcile.Report, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	sweeper     Sweeper
	defaultMode string
	logger      *zap.Logger
}

// NewProcessor constructs a worker processor. defaultMode applies to tasks
// that do not name a mode, such as scheduled sweeps.
func NewProcessor(sweeper Sweeper, defaultMode string, logger *zap.Logger) *Processor {
	if defaultMode == "" {
		defaultMode = reconcile.ModeReport
	}
	return &Processor{sweeper: sweeper, defaultMode: defaultMode, logger: logging.OrNop(logger)}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ReconcileTask, p.HandleReconcile)
	return mux
}

// HandleReconcile runs a sweep for one task.
func (p *Processor) HandleReconcile(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeReconcile(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	mode := payload.Mode
	switch mode {
	case "":
		mode = p.defaultMode
	case reconcile.ModeReport, reconcile.ModePublish:
	default:
		return fmt.Errorf("%w: unknown mode %q", asynq.SkipRetry, mode)
	}
	report, err := p.sweeper.Run(ctx, mode)
	if err != nil {
		p.logger.Error("reconcile failed", zap.String("mode", mode), zap.Error(err))
		return err
	}
	p.logger.Info("reconcile finished",
		zap.String("mode", mode),
		zap.String("requestedBy", payload.RequestedBy),
		zap.Int("orphans", len(report.Orphans)),
		zap.Int("published", report.Published),
	)
	return nil
}
