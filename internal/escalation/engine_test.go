package escalation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-guard/internal/clock"
	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/events"
	"github.com/spec-kit/sla-guard/internal/sla"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

type fakeEscalator struct {
	calls []domain.Actor
	err   error
}

func (f *fakeEscalator) Escalate(_ context.Context, actor domain.Actor, ticketID int64, _ *int64) (*domain.TicketView, error) {
	f.calls = append(f.calls, actor)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.TicketView{Ticket: domain.Ticket{ID: ticketID, Status: domain.TicketStatusEscalated}}, nil
}

type staticSource struct{ views []domain.TicketView }

func (s staticSource) UnresolvedViews(context.Context) ([]domain.TicketView, error) {
	return s.views, nil
}

func viewAt(pct float64, status domain.TicketStatus) domain.TicketView {
	assignee := int64(5)
	return domain.TicketView{
		Ticket: domain.Ticket{ID: 1, Title: "Router", Status: status, AssigneeID: &assignee},
		SLA:    domain.SLAStatus{RiskPercentage: pct, RiskLevel: sla.LevelFor(pct)},
	}
}

func newEngine(esc Escalator, src Source) (*Engine, *[]events.Event) {
	var published []events.Event
	d := events.NewInMemoryDispatcher(zap.NewNop())
	d.Subscribe(events.EventSLAWarning, func(_ context.Context, e events.Event) error {
		published = append(published, e)
		return nil
	})
	return NewEngine(EngineDependencies{
		Policy:     DefaultPolicy(),
		Tracker:    NewMemoryLevelTracker(),
		Escalator:  esc,
		Source:     src,
		Dispatcher: d,
		Clock:      clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}), &published
}

func TestWarningNotificationIsEdgeTriggered(t *testing.T) {
	esc := &fakeEscalator{}
	engine, published := newEngine(esc, nil)

	for _, pct := range []float64{40, 60, 80, 60, 80} {
		_, _, err := engine.Evaluate(context.Background(), viewAt(pct, domain.TicketStatusInProgress))
		require.NoError(t, err)
	}

	require.Len(t, *published, 2)
	first := (*published)[0].Payload.(events.SLAWarningPayload)
	second := (*published)[1].Payload.(events.SLAWarningPayload)
	assert.Equal(t, domain.RiskLevelWarning, first.RiskLevel)
	assert.Equal(t, domain.RiskLevelHighRisk, second.RiskLevel)
	assert.Equal(t, int64(5), first.AssigneeID)
	assert.Empty(t, esc.calls)
}

func TestCriticalTicketNearLimitAutoEscalates(t *testing.T) {
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{
		ID:        7,
		Priority:  domain.TicketPriorityCritical,
		Status:    domain.TicketStatusOpen,
		CreatedAt: now.Add(-231 * time.Minute), // 3.85h
	}
	status, err := sla.Evaluate(ticket, 4, now)
	require.NoError(t, err)
	assert.InDelta(t, 96.25, status.RiskPercentage, 1e-9)
	assert.Equal(t, domain.RiskLevelHighRisk, status.RiskLevel)

	esc := &fakeEscalator{}
	engine, _ := newEngine(esc, nil)
	view, decision, err := engine.Evaluate(context.Background(), domain.TicketView{Ticket: *ticket, SLA: status})
	require.NoError(t, err)

	assert.True(t, decision.Escalate)
	require.Len(t, esc.calls, 1)
	assert.True(t, esc.calls[0].System)
	assert.Equal(t, domain.TicketStatusEscalated, view.Status)
}

func TestAlreadyEscalatedTicketIsNotEscalatedAgain(t *testing.T) {
	esc := &fakeEscalator{}
	engine, published := newEngine(esc, nil)

	_, decision, err := engine.Evaluate(context.Background(), viewAt(100, domain.TicketStatusEscalated))
	require.NoError(t, err)
	assert.False(t, decision.Escalate)
	assert.Empty(t, esc.calls)
	assert.Len(t, *published, 1, "assignee still hears about the breach")
}

func TestConcurrentEscalationConflictIsAbsorbed(t *testing.T) {
	esc := &fakeEscalator{err: apperrors.NewConflict("ticket already escalated", nil)}
	engine, _ := newEngine(esc, nil)

	view, decision, err := engine.Evaluate(context.Background(), viewAt(95, domain.TicketStatusOpen))
	require.NoError(t, err)
	assert.False(t, decision.Escalate)
	assert.Equal(t, domain.TicketStatusOpen, view.Status)
}

func TestResolvedTicketResetsTracker(t *testing.T) {
	engine, published := newEngine(&fakeEscalator{}, nil)
	ctx := context.Background()

	_, _, _ = engine.Evaluate(ctx, viewAt(60, domain.TicketStatusInProgress))
	_, _, _ = engine.Evaluate(ctx, viewAt(60, domain.TicketStatusResolved))
	_, _, _ = engine.Evaluate(ctx, viewAt(60, domain.TicketStatusInProgress))

	assert.Len(t, *published, 2)
}

func TestSweepCountsOutcomes(t *testing.T) {
	hot := viewAt(92, domain.TicketStatusInProgress)
	warm := viewAt(55, domain.TicketStatusInProgress)
	warm.ID = 2
	broken := viewAt(99, domain.TicketStatusOpen)
	broken.ID = 3

	esc := &selectiveEscalator{fail: 3}
	engine, _ := newEngine(esc, staticSource{views: []domain.TicketView{hot, warm, broken}})

	stats, err := engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Evaluated: 3, Escalated: 1, Notified: 2, Failed: 1}, stats)
}

type selectiveEscalator struct{ fail int64 }

func (s *selectiveEscalator) Escalate(_ context.Context, _ domain.Actor, ticketID int64, _ *int64) (*domain.TicketView, error) {
	if ticketID == s.fail {
		return nil, errors.New("store unavailable")
	}
	return &domain.TicketView{Ticket: domain.Ticket{ID: ticketID, Status: domain.TicketStatusEscalated}}, nil
}
