// Package worker runs the background loops: the periodic escalation sweep
// and notification redelivery.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-guard/internal/clock"
	"github.com/spec-kit/sla-guard/internal/escalation"
	"github.com/spec-kit/sla-guard/internal/notify"
	"github.com/spec-kit/sla-guard/internal/service"
)

// Job is one pass of periodic work.
type Job func(ctx context.Context) error

// Periodic runs a Job on every tick until its context ends. A failing pass is
// logged and the loop keeps going.
type Periodic struct {
	name     string
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger
	job      Job
}

// NewPeriodic builds a loop. A nil clock uses wall time.
func NewPeriodic(name string, interval time.Duration, clk clock.Clock, logger *zap.Logger, job Job) *Periodic {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Periodic{name: name, interval: interval, clock: clk, logger: logger, job: job}
}

// Run blocks until ctx is done.
func (p *Periodic) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Info("worker started", zap.String("worker", p.name), zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopped", zap.String("worker", p.name))
			return
		case <-ticker.Chan():
			if err := p.job(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("worker pass failed", zap.String("worker", p.name), zap.Error(err))
			}
		}
	}
}

// NewEscalationSweeper re-evaluates every unresolved ticket on each tick.
func NewEscalationSweeper(engine *escalation.Engine, interval time.Duration, clk clock.Clock, logger *zap.Logger) *Periodic {
	return NewPeriodic("escalation-sweep", interval, clk, logger, func(ctx context.Context) error {
		_, err := engine.Sweep(ctx)
		return err
	})
}

// NewNotificationRetrier redelivers queued notifications on each tick.
func NewNotificationRetrier(sink *notify.Reliable, interval time.Duration, clk clock.Clock, logger *zap.Logger) *Periodic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewPeriodic("notification-retry", interval, clk, logger, func(ctx context.Context) error {
		stats, err := sink.Redeliver(ctx)
		if stats.Delivered+stats.Requeued+stats.Dropped > 0 {
			logger.Info("notification redelivery",
				zap.Int("delivered", stats.Delivered),
				zap.Int("requeued", stats.Requeued),
				zap.Int("dropped", stats.Dropped))
		}
		return err
	})
}

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
