package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-guard/internal/clock"
	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/escalation"
	"github.com/spec-kit/sla-guard/internal/events"
	"github.com/spec-kit/sla-guard/internal/notify"
	"github.com/spec-kit/sla-guard/internal/repository"
	"github.com/spec-kit/sla-guard/internal/repository/memory"
	"github.com/spec-kit/sla-guard/internal/sla"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type harness struct {
	clock         *clock.FakeClock
	users         *memory.UserRepository
	store         *memory.TicketStore
	inbox         *memory.NotificationRepository
	limits        *sla.Config
	tickets       *TicketService
	comments      *CommentService
	notifications *NotificationService
	analytics     *AnalyticsService
}

// newHarness wires the services over in-memory repositories. wrap may
// decorate the ticket store seen by the services.
func newHarness(t *testing.T, wrap func(*memory.TicketStore) repository.TicketStore) *harness {
	t.Helper()
	return newHarnessWithSink(t, wrap, nil)
}

// newHarnessWithSink is newHarness with notifications sent to sink instead
// of the inbox-backed default.
func newHarnessWithSink(t *testing.T, wrap func(*memory.TicketStore) repository.TicketStore, sink notify.Sink) *harness {
	t.Helper()
	limits, err := sla.NewConfig(nil)
	require.NoError(t, err)

	h := &harness{
		clock:  clock.Fake(t0),
		users:  memory.NewUserRepository(),
		store:  memory.NewTicketStore(),
		inbox:  memory.NewNotificationRepository(),
		limits: limits,
	}
	var store repository.TicketStore = h.store
	if wrap != nil {
		store = wrap(h.store)
	}

	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher(logger)
	if sink == nil {
		sink = notify.NewReliable(notify.ReliableDependencies{
			Transports: []notify.Transport{notify.NewInboxTransport(h.inbox)},
			Clock:      h.clock,
			Logger:     logger,
		})
	}
	h.notifications = NewNotificationService(NotificationDependencies{
		Dispatcher:       dispatcher,
		Sink:             sink,
		NotificationRepo: h.inbox,
		UserRepo:         h.users,
		Logger:           logger,
	})
	h.notifications.RegisterHandlers()

	h.tickets = NewTicketService(TicketDependencies{
		TicketStore:  store,
		ActivityRepo: h.store,
		UserRepo:     h.users,
		SLAConfig:    limits,
		Dispatcher:   dispatcher,
		Clock:        h.clock,
		Logger:       logger,
	})
	h.tickets.UseEscalation(escalation.NewEngine(escalation.EngineDependencies{
		Escalator:  h.tickets,
		Source:     h.tickets,
		Dispatcher: dispatcher,
		Clock:      h.clock,
		Logger:     logger,
	}))
	h.comments = NewCommentService(CommentDependencies{
		CommentRepo: memory.NewCommentRepository(),
		TicketStore: store,
		Dispatcher:  dispatcher,
		Clock:       h.clock,
		Logger:      logger,
	})
	h.analytics = NewAnalyticsService(h.tickets, h.users)
	return h
}

func (h *harness) actor(t *testing.T, name string, role domain.Role) domain.Actor {
	t.Helper()
	u := &domain.User{Name: name, Email: name + "@example.com", Role: role, CreatedAt: t0}
	require.NoError(t, h.users.Create(context.Background(), u))
	return domain.UserActor(u)
}

func (h *harness) create(t *testing.T, actor domain.Actor, title string, priority domain.TicketPriority) *domain.TicketView {
	t.Helper()
	view, err := h.tickets.Create(context.Background(), actor, TicketCreateInput{
		Title:    title,
		Customer: "Acme",
		Priority: priority,
	})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	return view
}

// at moves the fake clock to ts.
func (h *harness) at(ts time.Time) {
	h.clock.Advance(ts.Sub(h.clock.Now()))
}

func (h *harness) received(t *testing.T, actor domain.Actor, severity domain.NotificationSeverity) []domain.Notification {
	t.Helper()
	all, err := h.inbox.ListByUser(context.Background(), actor.UserID, false, 100)
	require.NoError(t, err)
	var out []domain.Notification
	for _, n := range all {
		if n.Severity == severity {
			out = append(out, n)
		}
	}
	return out
}

func ticketIDs(views []domain.TicketView) []int64 {
	ids := make([]int64, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	return ids
}
