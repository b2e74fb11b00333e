package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/repository"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

var created = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newTicket(title, customer string, priority domain.TicketPriority, offset time.Duration) *domain.Ticket {
	return &domain.Ticket{
		Title:     title,
		Customer:  customer,
		Priority:  priority,
		Status:    domain.TicketStatusOpen,
		CreatedAt: created.Add(offset),
		UpdatedAt: created.Add(offset),
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewTicketStore()

	tk := newTicket("Printer jam", "Acme", domain.TicketPriorityLow, 0)
	entry := &domain.ActivityLogEntry{Action: domain.ActionCreated, Timestamp: created}
	require.NoError(t, store.Create(ctx, tk, entry))
	assert.Equal(t, int64(1), tk.ID)
	assert.Equal(t, int64(1), tk.Version)
	assert.Equal(t, tk.ID, entry.TicketID)

	got, err := store.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "Printer jam", got.Title)

	got.Title = "mutated"
	again, err := store.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "Printer jam", again.Title)

	_, err = store.Get(ctx, 99)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestApplyTransitionCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewTicketStore()
	tk := newTicket("Email down", "Globex", domain.TicketPriorityHigh, 0)
	require.NoError(t, store.Create(ctx, tk, nil))

	first := tk.Clone()
	first.Status = domain.TicketStatusEscalated
	require.NoError(t, store.ApplyTransition(ctx, first, 1, &domain.ActivityLogEntry{Action: domain.ActionEscalated}))
	assert.Equal(t, int64(2), first.Version)

	stale := tk.Clone()
	stale.Status = domain.TicketStatusInProgress
	err := store.ApplyTransition(ctx, stale, 1, &domain.ActivityLogEntry{Action: domain.ActionAccepted})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	stored, err := store.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, stored.Status)

	log, err := store.ListByTicket(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, domain.ActionEscalated, log[0].Action)

	missing := tk.Clone()
	missing.ID = 42
	err = store.ApplyTransition(ctx, missing, 1, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestConcurrentTransitionsOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := NewTicketStore()
	tk := newTicket("Outage", "Initech", domain.TicketPriorityCritical, 0)
	require.NoError(t, store.Create(ctx, tk, nil))

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(assignee int64) {
			defer wg.Done()
			next := tk.Clone()
			next.Status = domain.TicketStatusInProgress
			next.AssigneeID = &assignee
			if err := store.ApplyTransition(ctx, next, 1, &domain.ActivityLogEntry{Action: domain.ActionAccepted}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	log, err := store.ListByTicket(ctx, tk.ID)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewTicketStore()
	tech := int64(7)
	owner := int64(3)

	a := newTicket("VPN broken", "Acme", domain.TicketPriorityHigh, 0)
	a.CreatedByID = &owner
	b := newTicket("Laptop", "Globex", domain.TicketPriorityLow, time.Hour)
	b.AssigneeID = &tech
	b.Status = domain.TicketStatusInProgress
	c := newTicket("Resolved thing", "acme corp", domain.TicketPriorityLow, 2*time.Hour)
	c.Status = domain.TicketStatusResolved
	for _, tk := range []*domain.Ticket{a, b, c} {
		require.NoError(t, store.Create(ctx, tk, nil))
	}

	all, err := store.List(ctx, repository.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, c.ID, all[0].ID, "newest first")

	low := domain.TicketPriorityLow
	tests := []struct {
		name   string
		filter repository.TicketFilter
		want   []int64
	}{
		{"status", repository.TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress}}, []int64{b.ID, a.ID}},
		{"priority", repository.TicketFilter{Priority: &low}, []int64{c.ID, b.ID}},
		{"assignee", repository.TicketFilter{AssigneeID: &tech}, []int64{b.ID}},
		{"creator", repository.TicketFilter{CreatedByID: &owner}, []int64{a.ID}},
		{"search customer", repository.TicketFilter{Search: "ACME"}, []int64{c.ID, a.ID}},
		{"page", repository.TicketFilter{Limit: 1, Offset: 1}, []int64{b.ID}},
		{"page past end", repository.TicketFilter{Limit: 5, Offset: 10}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]int64, 0, len(got))
			for _, tk := range got {
				ids = append(ids, tk.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	workload, err := store.OpenWorkload(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{tech: 1}, workload)
}

func TestExpiredContextIsTimeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := NewTicketStore().Get(ctx, 1)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTimeout))
}
