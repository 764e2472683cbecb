package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/persistence"
	"github.com/spec-kit/helpdesk-sla/internal/service"
)

const sweepLockKey = "helpdesk-sla:escalation-sweep"

// EscalationWorker periodically runs the batch escalation sweep. It
// plays the external-scheduler role: the escalation service itself
// never sleeps or self-triggers. A Redis lease keeps the sweep from
// running concurrently across instances.
type EscalationWorker struct {
	escalations *service.EscalationService
	redis       *persistence.Redis
	metrics     *observability.Metrics
	logger      *zap.Logger
	cfg         config.EscalationConfig
	holder      string
}

// NewEscalationWorker constructs the worker.
func NewEscalationWorker(escalations *service.EscalationService, redis *persistence.Redis, metrics *observability.Metrics, logger *zap.Logger, cfg config.EscalationConfig) *EscalationWorker {
	return &EscalationWorker{
		escalations: escalations,
		redis:       redis,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		holder:      uuid.NewString(),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *EscalationWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.SweepInterval())
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.runOnce(ctx)
			}
		}
	}()
}

func (w *EscalationWorker) runOnce(ctx context.Context) {
	acquired, err := w.redis.AcquireLock(ctx, sweepLockKey, w.holder, w.cfg.SweepLockTTL())
	if err != nil {
		w.logger.Warn("sweep lock acquisition failed", zap.Error(err))
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := w.redis.ReleaseLock(ctx, sweepLockKey, w.holder); err != nil {
			w.logger.Warn("sweep lock release failed", zap.Error(err))
		}
	}()

	result, err := w.escalations.ProcessPending(ctx)
	if err != nil {
		w.logger.Error("escalation sweep failed", zap.Error(err))
		return
	}
	w.metrics.RecordSweep(result.Escalated, result.Errors)
}
