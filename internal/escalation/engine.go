package escalation

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-guard/internal/clock"
	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/events"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// Escalator applies an escalation through the regular, version-checked
// transition path. A nil seniorID lets the implementation pick one.
type Escalator interface {
	Escalate(ctx context.Context, actor domain.Actor, ticketID int64, seniorID *int64) (*domain.TicketView, error)
}

// Source lists the projected views of every unresolved ticket.
type Source interface {
	UnresolvedViews(ctx context.Context) ([]domain.TicketView, error)
}

// SweepStats summarises one sweep.
type SweepStats struct {
	Evaluated int
	Escalated int
	Notified  int
	Failed    int
}

// Engine runs the policy on read-path projections and periodic sweeps.
type Engine struct {
	policy     Policy
	tracker    LevelTracker
	escalator  Escalator
	source     Source
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// EngineDependencies bundles collaborators for the engine.
type EngineDependencies struct {
	Policy     Policy
	Tracker    LevelTracker
	Escalator  Escalator
	Source     Source
	Dispatcher events.Dispatcher
	Clock      clock.Clock
	Logger     *zap.Logger
}

// NewEngine constructs the engine.
func NewEngine(deps EngineDependencies) *Engine {
	e := &Engine{
		policy:     deps.Policy,
		tracker:    deps.Tracker,
		escalator:  deps.Escalator,
		source:     deps.Source,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
	if e.policy == (Policy{}) {
		e.policy = DefaultPolicy()
	}
	if e.tracker == nil {
		e.tracker = NewMemoryLevelTracker()
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Evaluate applies the policy to view and returns the view callers should
// present: the escalated ticket when an automatic escalation happened,
// otherwise view unchanged.
func (e *Engine) Evaluate(ctx context.Context, view domain.TicketView) (domain.TicketView, Decision, error) {
	if view.Status == domain.TicketStatusResolved {
		if err := e.tracker.Forget(ctx, view.ID); err != nil {
			e.logger.Warn("unable to clear risk level", zap.Int64("ticket_id", view.ID), zap.Error(err))
		}
		return view, Decision{Level: view.SLA.RiskLevel}, nil
	}

	previous, err := e.tracker.Raise(ctx, view.ID, view.SLA.RiskLevel)
	if err != nil {
		// Without a high-water mark the edge cannot be detected; stay quiet.
		e.logger.Warn("unable to record risk level", zap.Int64("ticket_id", view.ID), zap.Error(err))
		previous = view.SLA.RiskLevel
	}

	decision := e.policy.Decide(view, previous)
	if decision.NotifyAssignee {
		e.publishWarning(ctx, view)
	}
	if !decision.Escalate {
		return view, decision, nil
	}

	escalated, err := e.escalator.Escalate(ctx, domain.SystemActor(), view.ID, nil)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeConflict) || apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
			// Another writer moved the ticket first.
			e.logger.Debug("auto escalation skipped", zap.Int64("ticket_id", view.ID), zap.Error(err))
			decision.Escalate = false
			return view, decision, nil
		}
		return view, decision, err
	}
	e.logger.Warn("ticket auto-escalated",
		zap.Int64("ticket_id", view.ID),
		zap.Float64("risk_percentage", view.SLA.RiskPercentage),
		zap.String("risk_level", string(view.SLA.RiskLevel)),
	)
	return *escalated, decision, nil
}

// Sweep evaluates every unresolved ticket. A failing ticket is logged and
// does not stop the sweep.
func (e *Engine) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	views, err := e.source.UnresolvedViews(ctx)
	if err != nil {
		return stats, err
	}
	for _, view := range views {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Evaluated++
		_, decision, err := e.Evaluate(ctx, view)
		if err != nil {
			stats.Failed++
			e.logger.Error("escalation evaluation failed", zap.Int64("ticket_id", view.ID), zap.Error(err))
			continue
		}
		if decision.Escalate {
			stats.Escalated++
		}
		if decision.NotifyAssignee {
			stats.Notified++
		}
	}
	e.logger.Info("escalation sweep finished",
		zap.Int("evaluated", stats.Evaluated),
		zap.Int("escalated", stats.Escalated),
		zap.Int("notified", stats.Notified),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (e *Engine) publishWarning(ctx context.Context, view domain.TicketView) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSLAWarning,
		TicketID:  view.ID,
		Timestamp: e.clock.Now(),
		Payload: events.SLAWarningPayload{
			AssigneeID:     *view.AssigneeID,
			Title:          view.Title,
			RiskPercentage: view.SLA.RiskPercentage,
			RiskLevel:      view.SLA.RiskLevel,
			RemainingHours: view.SLA.RemainingHours,
		},
	})
}
