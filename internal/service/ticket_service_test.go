package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/notify"
	"github.com/spec-kit/sla-guard/internal/repository"
	"github.com/spec-kit/sla-guard/internal/repository/memory"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

type conflictingStore struct {
	*memory.TicketStore
	conflicts int
}

func (s *conflictingStore) ApplyTransition(ctx context.Context, ticket *domain.Ticket, expectedVersion int64, entry *domain.ActivityLogEntry) error {
	if s.conflicts > 0 {
		s.conflicts--
		return apperrors.NewConflict("ticket was modified concurrently", nil)
	}
	return s.TicketStore.ApplyTransition(ctx, ticket, expectedVersion, entry)
}

func TestCriticalTicketNearBreachAutoEscalatesOnRead(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	manager := h.actor(t, "maria", domain.RoleManager)
	senior := h.actor(t, "sam", domain.RoleSeniorTechnician)
	otherSenior := h.actor(t, "sol", domain.RoleSeniorTechnician)
	tech := h.actor(t, "tom", domain.RoleTechnician)

	created := h.create(t, manager, "Core switch down", domain.TicketPriorityCritical)
	h.clock.Advance(230 * time.Minute)

	view, err := h.tickets.Get(ctx, manager, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, view.Status)
	assert.InDelta(t, 96.25, view.SLA.RiskPercentage, 1e-6)
	assert.Equal(t, domain.RiskLevelHighRisk, view.SLA.RiskLevel)
	require.NotNil(t, view.AssigneeID)
	assert.Equal(t, senior.UserID, *view.AssigneeID)

	for _, target := range []domain.Actor{senior, otherSenior, manager} {
		alerts := h.received(t, target, domain.SeverityAlert)
		require.Len(t, alerts, 1)
		require.NotNil(t, alerts[0].TicketID)
		assert.Equal(t, created.ID, *alerts[0].TicketID)
	}
	assert.Empty(t, h.received(t, tech, domain.SeverityAlert))

	activity, err := h.tickets.Activity(ctx, manager, created.ID)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, domain.ActionCreated, activity[0].Action)
	assert.Equal(t, domain.ActionAutoEscalated, activity[1].Action)
	assert.Nil(t, activity[1].ActorID)

	// Already escalated: further reads do not escalate or alert again.
	h.clock.Advance(30 * time.Minute)
	_, err = h.tickets.Get(ctx, manager, created.ID)
	require.NoError(t, err)
	assert.Len(t, h.received(t, senior, domain.SeverityAlert), 1)
}

func TestSeniorKeepsAcceptedTicketPastThreshold(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	manager := h.actor(t, "maria", domain.RoleManager)
	sam := h.actor(t, "sam", domain.RoleSeniorTechnician)
	sol := h.actor(t, "sol", domain.RoleSeniorTechnician)

	created := h.create(t, manager, "Core switch down", domain.TicketPriorityCritical)
	h.clock.Advance(230 * time.Minute)
	view, err := h.tickets.Get(ctx, manager, created.ID)
	require.NoError(t, err)
	require.True(t, view.IsAssignedTo(sam.UserID))

	_, err = h.tickets.Accept(ctx, sol, created.ID)
	require.NoError(t, err)

	h.clock.Advance(5 * time.Minute)
	view, err = h.tickets.Get(ctx, sol, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, view.Status)
	assert.True(t, view.IsAssignedTo(sol.UserID))

	activity, err := h.tickets.Activity(ctx, manager, created.ID)
	require.NoError(t, err)
	var actions []domain.ActivityAction
	for _, e := range activity {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []domain.ActivityAction{domain.ActionCreated, domain.ActionAutoEscalated, domain.ActionAccepted}, actions)

	// A manual escalation without a named senior leaves it with sol.
	view, err = h.tickets.Escalate(ctx, manager, created.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, view.Status)
	assert.True(t, view.IsAssignedTo(sol.UserID))
}

func TestWarningNotificationFiresOncePerLevel(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user := h.actor(t, "ursula", domain.RoleUser)
	tech := h.actor(t, "tom", domain.RoleTechnician)

	created := h.create(t, user, "VPN flaky", domain.TicketPriorityMedium)
	_, err := h.tickets.Accept(ctx, tech, created.ID)
	require.NoError(t, err)

	readAt := func(hours float64) domain.RiskLevel {
		h.at(t0.Add(time.Duration(hours * float64(time.Hour))))
		view, err := h.tickets.Get(ctx, tech, created.ID)
		require.NoError(t, err)
		return view.SLA.RiskLevel
	}

	assert.Equal(t, domain.RiskLevelSafe, readAt(6))
	assert.Equal(t, domain.RiskLevelWarning, readAt(13))
	assert.Equal(t, domain.RiskLevelWarning, readAt(14))
	assert.Equal(t, domain.RiskLevelHighRisk, readAt(19))
	assert.Equal(t, domain.RiskLevelHighRisk, readAt(20))

	assert.Len(t, h.received(t, tech, domain.SeverityInfo), 2)
	assert.Empty(t, h.received(t, user, domain.SeverityInfo))
}

func TestTransitionRetriesOnceOnConflict(t *testing.T) {
	var store *conflictingStore
	h := newHarness(t, func(inner *memory.TicketStore) repository.TicketStore {
		store = &conflictingStore{TicketStore: inner}
		return store
	})
	ctx := context.Background()
	user := h.actor(t, "ursula", domain.RoleUser)
	tech := h.actor(t, "tom", domain.RoleTechnician)
	created := h.create(t, user, "Printer jam", domain.TicketPriorityLow)

	store.conflicts = 1
	view, err := h.tickets.Accept(ctx, tech, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, view.Status)
	assert.Equal(t, int64(2), view.Version)

	store.conflicts = 2
	_, err = h.tickets.UpdateProgress(ctx, tech, created.ID, "waiting on toner")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	activity, err := h.tickets.Activity(ctx, tech, created.ID)
	require.NoError(t, err)
	assert.Len(t, activity, 2)
}

type recordingStore struct {
	*memory.TicketStore
	filters []repository.TicketFilter
}

func (s *recordingStore) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	s.filters = append(s.filters, filter)
	return s.TicketStore.List(ctx, filter)
}

func TestListPagesInTheStore(t *testing.T) {
	var rec *recordingStore
	h := newHarness(t, func(store *memory.TicketStore) repository.TicketStore {
		rec = &recordingStore{TicketStore: store}
		return rec
	})
	ctx := context.Background()
	user := h.actor(t, "ursula", domain.RoleUser)
	tech := h.actor(t, "tom", domain.RoleTechnician)

	var ids []int64
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		ids = append(ids, h.create(t, user, title, domain.TicketPriorityLow).ID)
	}
	_, err := h.tickets.Accept(ctx, tech, ids[1])
	require.NoError(t, err)
	_, err = h.tickets.Accept(ctx, tech, ids[3])
	require.NoError(t, err)

	rec.filters = nil
	views, err := h.tickets.List(ctx, user, TicketListInput{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[3], ids[2]}, ticketIDs(views))
	require.Len(t, rec.filters, 1)
	assert.Equal(t, 2, rec.filters[0].Limit)
	assert.Equal(t, 1, rec.filters[0].Offset)
	require.NotNil(t, rec.filters[0].CreatedByID)

	views, err = h.tickets.List(ctx, user, TicketListInput{Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[0]}, ticketIDs(views))

	// Own tickets and the open queue merge before paging.
	views, err = h.tickets.List(ctx, tech, TicketListInput{Limit: 3, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[3], ids[2], ids[1]}, ticketIDs(views))
}

type downTransport struct{}

func (downTransport) Name() string { return "down" }

func (downTransport) Deliver(context.Context, notify.Delivery) error {
	return errors.New("transport down")
}

type downQueue struct{}

func (downQueue) Push(context.Context, notify.RetryItem) error { return errors.New("queue down") }
func (downQueue) Pop(context.Context) (*notify.RetryItem, error) { return nil, nil }
func (downQueue) Len(context.Context) (int64, error)            { return 0, nil }

func TestDeliveryFailureDoesNotUndoTransitions(t *testing.T) {
	sink := notify.NewReliable(notify.ReliableDependencies{
		Transports: []notify.Transport{downTransport{}},
		Queue:      downQueue{},
	})
	err := sink.Emit(context.Background(), []int64{1}, "check", domain.SeverityInfo, nil)
	require.True(t, apperrors.HasCode(err, apperrors.CodeDeliveryFailure))

	h := newHarnessWithSink(t, nil, sink)
	ctx := context.Background()
	manager := h.actor(t, "maria", domain.RoleManager)
	senior := h.actor(t, "sam", domain.RoleSeniorTechnician)
	tech := h.actor(t, "tom", domain.RoleTechnician)

	created := h.create(t, manager, "Printer on fire", domain.TicketPriorityHigh)
	_, err = h.tickets.Accept(ctx, tech, created.ID)
	require.NoError(t, err)

	escalated, err := h.tickets.Escalate(ctx, tech, created.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, escalated.Status)
	stored, err := h.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, stored.Status)
	assert.True(t, stored.IsAssignedTo(senior.UserID))

	resolved, err := h.tickets.Resolve(ctx, manager, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, resolved.Status)
	stored, err = h.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, stored.Status)
	assert.NotNil(t, stored.ResolvedAt)

	activity, err := h.tickets.Activity(ctx, manager, created.ID)
	require.NoError(t, err)
	require.Len(t, activity, 4)
	assert.Equal(t, domain.ActionEscalated, activity[2].Action)
	assert.Equal(t, domain.ActionResolved, activity[3].Action)
	assert.Empty(t, h.received(t, senior, domain.SeverityAlert))
}

func TestListingIsScopedByRole(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	manager := h.actor(t, "maria", domain.RoleManager)
	senior := h.actor(t, "sam", domain.RoleSeniorTechnician)
	tech := h.actor(t, "tom", domain.RoleTechnician)
	other := h.actor(t, "tina", domain.RoleTechnician)
	user := h.actor(t, "ursula", domain.RoleUser)

	queued := h.create(t, user, "Email bounce", domain.TicketPriorityLow)
	assigned, err := h.tickets.Create(ctx, manager, TicketCreateInput{
		Title: "Disk full", Customer: "Acme", Priority: domain.TicketPriorityHigh, AssigneeID: &other.UserID,
	})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	escalated := h.create(t, manager, "DB failover", domain.TicketPriorityHigh)
	_, err = h.tickets.Escalate(ctx, manager, escalated.ID, nil)
	require.NoError(t, err)

	list := func(actor domain.Actor) []int64 {
		views, err := h.tickets.List(ctx, actor, TicketListInput{})
		require.NoError(t, err)
		return ticketIDs(views)
	}
	assert.Equal(t, []int64{escalated.ID, assigned.ID, queued.ID}, list(manager))
	assert.Equal(t, []int64{queued.ID}, list(user))
	assert.Equal(t, []int64{queued.ID}, list(tech))
	assert.Equal(t, []int64{assigned.ID, queued.ID}, list(other))
	assert.Equal(t, []int64{escalated.ID, queued.ID}, list(senior))

	_, err = h.tickets.Get(ctx, tech, assigned.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = h.tickets.Get(ctx, user, assigned.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = h.tickets.Get(ctx, user, 999)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = h.tickets.Escalated(ctx, tech)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	views, err := h.tickets.Escalated(ctx, senior)
	require.NoError(t, err)
	assert.Equal(t, []int64{escalated.ID}, ticketIDs(views))

	paged, err := h.tickets.List(ctx, manager, TicketListInput{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{assigned.ID}, ticketIDs(paged))
}

func TestCreateValidatesInput(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	manager := h.actor(t, "maria", domain.RoleManager)
	tech := h.actor(t, "tom", domain.RoleTechnician)
	user := h.actor(t, "ursula", domain.RoleUser)

	_, err := h.tickets.Create(ctx, user, TicketCreateInput{Customer: "Acme"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = h.tickets.Create(ctx, user, TicketCreateInput{Title: "x", Customer: "Acme", Priority: "URGENT"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = h.tickets.Create(ctx, user, TicketCreateInput{Title: "x", Customer: "Acme", AssigneeID: &tech.UserID})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = h.tickets.Create(ctx, manager, TicketCreateInput{Title: "x", Customer: "Acme", AssigneeID: &user.UserID})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	view, err := h.tickets.Create(ctx, manager, TicketCreateInput{Title: "x", Customer: "Acme", AssigneeID: &tech.UserID})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityMedium, view.Priority)
	assert.Equal(t, domain.TicketStatusOpen, view.Status)
	assert.Len(t, h.received(t, tech, domain.SeverityInfo), 1)

	_, err = h.tickets.Create(ctx, domain.SystemActor(), TicketCreateInput{Title: "x", Customer: "Acme"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestReassignChecksOrder(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	manager := h.actor(t, "maria", domain.RoleManager)
	tech := h.actor(t, "tom", domain.RoleTechnician)
	other := h.actor(t, "tina", domain.RoleTechnician)
	user := h.actor(t, "ursula", domain.RoleUser)
	created := h.create(t, user, "Laptop", domain.TicketPriorityLow)

	_, err := h.tickets.Reassign(ctx, tech, 999, tech.UserID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	_, err = h.tickets.Reassign(ctx, tech, created.ID, tech.UserID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = h.tickets.Reassign(ctx, manager, created.ID, user.UserID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	_, err = h.tickets.Reassign(ctx, manager, created.ID, 999)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	view, err := h.tickets.Reassign(ctx, manager, created.ID, tech.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, view.Status)
	assert.True(t, view.IsAssignedTo(tech.UserID))

	view, err = h.tickets.Reassign(ctx, manager, created.ID, other.UserID)
	require.NoError(t, err)
	assert.True(t, view.IsAssignedTo(other.UserID))
	assert.Len(t, h.received(t, tech, domain.SeverityInfo), 2)
	assert.Len(t, h.received(t, other, domain.SeverityInfo), 1)

	_, err = h.tickets.Reassign(ctx, manager, created.ID, other.UserID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestManualEscalationPicksLeastLoadedSenior(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	manager := h.actor(t, "maria", domain.RoleManager)
	busy := h.actor(t, "sam", domain.RoleSeniorTechnician)
	idle := h.actor(t, "sol", domain.RoleSeniorTechnician)
	tech := h.actor(t, "tom", domain.RoleTechnician)
	user := h.actor(t, "ursula", domain.RoleUser)

	first := h.create(t, user, "One", domain.TicketPriorityLow)
	_, err := h.tickets.Accept(ctx, busy, first.ID)
	require.NoError(t, err)

	second := h.create(t, user, "Two", domain.TicketPriorityLow)
	_, err = h.tickets.Escalate(ctx, tech, second.ID, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "only the assignee technician may escalate")

	_, err = h.tickets.Accept(ctx, tech, second.ID)
	require.NoError(t, err)
	_, err = h.tickets.Escalate(ctx, tech, second.ID, &user.UserID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	view, err := h.tickets.Escalate(ctx, tech, second.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, view.Status)
	assert.True(t, view.IsAssignedTo(idle.UserID))

	_, err = h.tickets.Escalate(ctx, manager, second.ID, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	assert.Len(t, h.received(t, busy, domain.SeverityAlert), 1)
	assert.Len(t, h.received(t, idle, domain.SeverityAlert), 1)
	assert.Empty(t, h.received(t, manager, domain.SeverityAlert))
	assert.Len(t, h.received(t, tech, domain.SeverityInfo), 1)

	activity, err := h.tickets.Activity(ctx, manager, second.ID)
	require.NoError(t, err)
	last := activity[len(activity)-1]
	assert.Equal(t, domain.ActionEscalated, last.Action)
	require.NotNil(t, last.ActorID)
	assert.Equal(t, tech.UserID, *last.ActorID)
}

func TestEscalationWithoutSeniorsLeavesTicketUnassigned(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	manager := h.actor(t, "maria", domain.RoleManager)
	tech := h.actor(t, "tom", domain.RoleTechnician)
	created := h.create(t, manager, "Firewall", domain.TicketPriorityHigh)
	_, err := h.tickets.Accept(ctx, tech, created.ID)
	require.NoError(t, err)

	view, err := h.tickets.Escalate(ctx, manager, created.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, view.Status)
	assert.Nil(t, view.AssigneeID)
}

func TestProgressAndResolve(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	tech := h.actor(t, "tom", domain.RoleTechnician)
	other := h.actor(t, "tina", domain.RoleTechnician)
	user := h.actor(t, "ursula", domain.RoleUser)
	created := h.create(t, user, "Wifi", domain.TicketPriorityHigh)

	_, err := h.tickets.Resolve(ctx, tech, created.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))

	_, err = h.tickets.Accept(ctx, tech, created.ID)
	require.NoError(t, err)
	_, err = h.tickets.UpdateProgress(ctx, tech, created.ID, "   ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	_, err = h.tickets.UpdateProgress(ctx, other, created.ID, "mine now")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = h.tickets.UpdateProgress(ctx, tech, created.ID, "replaced access point")
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)
	view, err := h.tickets.Resolve(ctx, tech, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, view.Status)
	require.NotNil(t, view.ResolvedAt)
	resolvedAt := *view.ResolvedAt

	h.clock.Advance(48 * time.Hour)
	view, err = h.tickets.Get(ctx, user, created.ID)
	require.NoError(t, err)
	assert.Equal(t, resolvedAt, *view.ResolvedAt)
	assert.Less(t, view.SLA.RiskPercentage, 100.0)

	_, err = h.tickets.Resolve(ctx, tech, created.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	infos := h.received(t, user, domain.SeverityInfo)
	require.Len(t, infos, 1)
	assert.Contains(t, infos[0].Message, "resolved")
}

func TestHighRiskListsOnlyAtRiskTickets(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	manager := h.actor(t, "maria", domain.RoleManager)

	slow := h.create(t, manager, "Slow", domain.TicketPriorityLow)
	urgent := h.create(t, manager, "Urgent", domain.TicketPriorityHigh)
	h.at(t0.Add(6*time.Hour + 30*time.Minute))

	views, err := h.tickets.HighRisk(ctx, manager)
	require.NoError(t, err)
	assert.Equal(t, []int64{urgent.ID}, ticketIDs(views))
	assert.NotContains(t, ticketIDs(views), slow.ID)
}
