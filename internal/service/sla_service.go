package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-guard/internal/auth"
	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/repository"
	"github.com/spec-kit/sla-guard/internal/sla"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// SLAService exposes and persists the per-priority SLA limits.
type SLAService struct {
	limits *sla.Config
	repo   repository.SLAConfigRepository
	logger *zap.Logger
}

// NewSLAService constructs the service.
func NewSLAService(limits *sla.Config, repo repository.SLAConfigRepository, logger *zap.Logger) *SLAService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAService{limits: limits, repo: repo, logger: logger}
}

// Load applies persisted overrides on top of the configured limits.
func (s *SLAService) Load(ctx context.Context) error {
	stored, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	for priority, hours := range stored {
		if err := s.limits.SetLimitHours(priority, hours); err != nil {
			s.logger.Warn("ignoring stored sla limit",
				zap.String("priority", string(priority)),
				zap.Float64("limit_hours", hours),
				zap.Error(err))
		}
	}
	return nil
}

// Config returns the current limits.
func (s *SLAService) Config() map[domain.TicketPriority]float64 {
	return s.limits.Snapshot()
}

// SetLimit changes the limit for priority. The in-memory value is rolled
// back when persisting fails.
func (s *SLAService) SetLimit(ctx context.Context, actor domain.Actor, priority domain.TicketPriority, hours float64) (map[domain.TicketPriority]float64, error) {
	if err := requireUser(actor, auth.ActionManageSLA); err != nil {
		return nil, err
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	previous, err := s.limits.LimitHoursFor(priority)
	if err != nil {
		return nil, err
	}
	if err := s.limits.SetLimitHours(priority, hours); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, priority, hours); err != nil {
		if rbErr := s.limits.SetLimitHours(priority, previous); rbErr != nil {
			s.logger.Error("sla limit rollback failed", zap.String("priority", string(priority)), zap.Error(rbErr))
		}
		return nil, err
	}
	s.logger.Info("sla limit updated",
		zap.Int64("actor_id", actor.UserID),
		zap.String("priority", string(priority)),
		zap.Float64("limit_hours", hours))
	return s.limits.Snapshot(), nil
}
