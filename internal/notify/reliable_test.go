package notify

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
	"github.com/spec-kit/sla-guard/internal/repository/memory"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

type recordingTransport struct {
	name     string
	mu       sync.Mutex
	failures int
	got      []Delivery
}

func (t *recordingTransport) Name() string { return t.name }

func (t *recordingTransport) Deliver(_ context.Context, d Delivery) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failures > 0 {
		t.failures--
		return errors.New("transport down")
	}
	t.got = append(t.got, d)
	return nil
}

type brokenQueue struct{ MemoryRetryQueue }

func (*brokenQueue) Push(context.Context, RetryItem) error { return errors.New("queue down") }

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestEmitDeliversToEveryTransport(t *testing.T) {
	a := &recordingTransport{name: "a"}
	b := &recordingTransport{name: "b"}
	sink := NewReliable(ReliableDependencies{Transports: []Transport{a, b}, Clock: clock.Fake(now), Logger: zap.NewNop()})

	ticketID := int64(9)
	require.NoError(t, sink.Emit(context.Background(), []int64{1, 2, 1}, "ticket escalated", domain.SeverityAlert, &ticketID))

	require.Len(t, a.got, 1)
	require.Len(t, b.got, 1)
	assert.Equal(t, []int64{1, 2}, a.got[0].Targets)
	assert.Equal(t, now, a.got[0].CreatedAt)
	assert.Equal(t, a.got[0].ID, b.got[0].ID)
}

func TestEmitWithoutTargetsIsNoop(t *testing.T) {
	a := &recordingTransport{name: "a"}
	sink := NewReliable(ReliableDependencies{Transports: []Transport{a}})
	require.NoError(t, sink.Emit(context.Background(), nil, "x", domain.SeverityInfo, nil))
	assert.Empty(t, a.got)
}

func TestFailedTransportIsQueuedAndRedelivered(t *testing.T) {
	ctx := context.Background()
	ok := &recordingTransport{name: "inbox"}
	flaky := &recordingTransport{name: "webhook", failures: 2}
	queue := NewMemoryRetryQueue()
	sink := NewReliable(ReliableDependencies{Transports: []Transport{ok, flaky}, Queue: queue, MaxAttempts: 5})

	require.NoError(t, sink.Emit(ctx, []int64{4}, "warning", domain.SeverityInfo, nil))
	assert.Len(t, ok.got, 1)
	assert.Empty(t, flaky.got)
	pending, _ := sink.Pending(ctx)
	assert.Equal(t, int64(1), pending)

	stats, err := sink.Redeliver(ctx)
	require.NoError(t, err)
	assert.Equal(t, RedeliveryStats{Requeued: 1}, stats)

	stats, err = sink.Redeliver(ctx)
	require.NoError(t, err)
	assert.Equal(t, RedeliveryStats{Delivered: 1}, stats)
	require.Len(t, flaky.got, 1)
	assert.Len(t, ok.got, 1, "healthy transports are not replayed")

	pending, _ = sink.Pending(ctx)
	assert.Zero(t, pending)
}

func TestRedeliverDropsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	dead := &recordingTransport{name: "kafka", failures: 100}
	sink := NewReliable(ReliableDependencies{Transports: []Transport{dead}, MaxAttempts: 2})

	require.NoError(t, sink.Emit(ctx, []int64{1}, "m", domain.SeverityInfo, nil))
	stats, err := sink.Redeliver(ctx)
	require.NoError(t, err)
	assert.Equal(t, RedeliveryStats{Dropped: 1}, stats)
}

func TestEmitReportsDeliveryFailureWhenQueueFails(t *testing.T) {
	dead := &recordingTransport{name: "webhook", failures: 1}
	sink := NewReliable(ReliableDependencies{Transports: []Transport{dead}, Queue: &brokenQueue{}})

	err := sink.Emit(context.Background(), []int64{1}, "m", domain.SeverityInfo, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDeliveryFailure))
}

func TestInboxTransportStoresOnePerTarget(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewNotificationRepository()
	ticketID := int64(3)

	err := NewInboxTransport(repo).Deliver(ctx, Delivery{
		ID:        "d1",
		Targets:   []int64{10, 11},
		Message:   "Ticket #3 escalated",
		Severity:  domain.SeverityAlert,
		TicketID:  &ticketID,
		CreatedAt: now,
	})
	require.NoError(t, err)

	for _, user := range []int64{10, 11} {
		inbox, err := repo.ListByUser(ctx, user, true, 0)
		require.NoError(t, err)
		require.Len(t, inbox, 1)
		assert.Equal(t, domain.SeverityAlert, inbox[0].Severity)
		assert.Equal(t, ticketID, *inbox[0].TicketID)
	}
}
