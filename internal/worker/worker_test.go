package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-guard/internal/clock"
	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/escalation"
	"github.com/spec-kit/sla-guard/internal/notify"
)

var start = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

func runInBackground(t *testing.T, p *Periodic) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	return cancel, done
}

func waitForTicker(t *testing.T, clk *clock.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clk.BlockUntilContext(ctx, 1))
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestPeriodicRunsOnEachTickAndSurvivesErrors(t *testing.T) {
	clk := clock.Fake(start)
	passes := make(chan struct{}, 4)
	calls := 0
	p := NewPeriodic("test", time.Minute, clk, zap.NewNop(), func(context.Context) error {
		calls++
		passes <- struct{}{}
		return errors.New("boom")
	})

	cancel, done := runInBackground(t, p)
	waitForTicker(t, clk)

	clk.Advance(time.Minute)
	waitFor(t, passes)
	clk.Advance(time.Minute)
	waitFor(t, passes)

	cancel()
	waitFor(t, done)
	assert.Equal(t, 2, calls)
}

type staticSource []domain.TicketView

func (s staticSource) UnresolvedViews(context.Context) ([]domain.TicketView, error) {
	return s, nil
}

type recordingEscalator struct {
	mu    sync.Mutex
	calls []int64
	done  chan struct{}
}

func (r *recordingEscalator) Escalate(_ context.Context, _ domain.Actor, ticketID int64, _ *int64) (*domain.TicketView, error) {
	r.mu.Lock()
	r.calls = append(r.calls, ticketID)
	r.mu.Unlock()
	r.done <- struct{}{}
	return &domain.TicketView{Ticket: domain.Ticket{ID: ticketID, Status: domain.TicketStatusEscalated}}, nil
}

func TestEscalationSweeperEscalatesDueTickets(t *testing.T) {
	clk := clock.Fake(start)
	esc := &recordingEscalator{done: make(chan struct{}, 1)}
	engine := escalation.NewEngine(escalation.EngineDependencies{
		Escalator: esc,
		Source: staticSource{
			{Ticket: domain.Ticket{ID: 7, Status: domain.TicketStatusOpen}, SLA: domain.SLAStatus{RiskPercentage: 95, RiskLevel: domain.RiskLevelHighRisk}},
			{Ticket: domain.Ticket{ID: 8, Status: domain.TicketStatusOpen}, SLA: domain.SLAStatus{RiskPercentage: 10, RiskLevel: domain.RiskLevelSafe}},
		},
		Clock: clk,
	})

	cancel, done := runInBackground(t, NewEscalationSweeper(engine, 5*time.Minute, clk, nil))
	waitForTicker(t, clk)
	clk.Advance(5 * time.Minute)
	waitFor(t, esc.done)
	cancel()
	waitFor(t, done)

	esc.mu.Lock()
	defer esc.mu.Unlock()
	assert.Equal(t, []int64{7}, esc.calls)
}

type flakyTransport struct {
	mu        sync.Mutex
	failures  int
	delivered chan notify.Delivery
}

func (f *flakyTransport) Name() string { return "flaky" }

func (f *flakyTransport) Deliver(_ context.Context, d notify.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("unavailable")
	}
	f.delivered <- d
	return nil
}

func TestNotificationRetrierRedeliversQueuedItems(t *testing.T) {
	clk := clock.Fake(start)
	transport := &flakyTransport{failures: 1, delivered: make(chan notify.Delivery, 1)}
	sink := notify.NewReliable(notify.ReliableDependencies{
		Transports: []notify.Transport{transport},
		Clock:      clk,
	})

	ticketID := int64(3)
	require.NoError(t, sink.Emit(context.Background(), []int64{1}, "hello", domain.SeverityInfo, &ticketID))
	pending, err := sink.Pending(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), pending)

	cancel, done := runInBackground(t, NewNotificationRetrier(sink, time.Minute, clk, nil))
	waitForTicker(t, clk)
	clk.Advance(time.Minute)

	select {
	case d := <-transport.delivered:
		assert.Equal(t, "hello", d.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not redelivered")
	}
	cancel()
	waitFor(t, done)

	pending, err = sink.Pending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}
