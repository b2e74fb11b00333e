package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-guard/internal/auth"
	"github.com/spec-kit/sla-guard/internal/clock"
	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/escalation"
	"github.com/spec-kit/sla-guard/internal/events"
	"github.com/spec-kit/sla-guard/internal/lifecycle"
	"github.com/spec-kit/sla-guard/internal/repository"
	"github.com/spec-kit/sla-guard/internal/sla"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows: creation, role-scoped reads
// with SLA projection and the lifecycle transitions.
type TicketService struct {
	tickets    repository.TicketStore
	activity   repository.ActivityLogRepository
	users      repository.UserRepository
	limits     *sla.Config
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	engine     *escalation.Engine
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketStore  repository.TicketStore
	ActivityRepo repository.ActivityLogRepository
	UserRepo     repository.UserRepository
	SLAConfig    *sla.Config
	Dispatcher   events.Dispatcher
	Clock        clock.Clock
	Logger       *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Customer    string
	Description string
	Priority    domain.TicketPriority
	AssigneeID  *int64
}

// TicketListInput describes listing filters. Role scoping is applied on top.
type TicketListInput struct {
	Status     *domain.TicketStatus
	Priority   *domain.TicketPriority
	AssigneeID *int64
	Search     string
	Limit      int
	Offset     int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:    deps.TicketStore,
		activity:   deps.ActivityRepo,
		users:      deps.UserRepo,
		limits:     deps.SLAConfig,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// UseEscalation makes every read run the escalation policy on its projection.
func (s *TicketService) UseEscalation(engine *escalation.Engine) {
	s.engine = engine
}

// Create opens a new ticket. Only managers may assign it up front.
func (s *TicketService) Create(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.TicketView, error) {
	if err := requireUser(actor, auth.ActionCreateTicket); err != nil {
		return nil, err
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Customer = strings.TrimSpace(input.Customer)
	if input.Title == "" || input.Customer == "" {
		return nil, apperrors.NewValidationError("title and customer are required", nil)
	}
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityMedium
	}
	if !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}
	if input.AssigneeID != nil {
		if err := auth.Require(actor.Role, auth.ActionReassignTicket); err != nil {
			return nil, err
		}
		if _, err := s.technician(ctx, *input.AssigneeID); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		Title:       input.Title,
		Customer:    input.Customer,
		Description: strings.TrimSpace(input.Description),
		Priority:    input.Priority,
		Status:      domain.TicketStatusOpen,
		AssigneeID:  input.AssigneeID,
		CreatedByID: actor.ActorRef(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	entry := &domain.ActivityLogEntry{
		Action:    domain.ActionCreated,
		ActorID:   actor.ActorRef(),
		Timestamp: now,
		Detail:    "ticket created",
	}
	if err := s.tickets.Create(ctx, ticket, entry); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, ticket.ID, events.EventTicketCreated, events.TicketCreatedPayload{
		Title:      ticket.Title,
		Priority:   ticket.Priority,
		AssigneeID: ticket.AssigneeID,
	})
	return s.project(ticket, now)
}

// Get returns the ticket with its current SLA projection.
func (s *TicketService) Get(ctx context.Context, actor domain.Actor, id int64) (*domain.TicketView, error) {
	ticket, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	view, err := s.project(ticket, s.clock.Now())
	if err != nil {
		return nil, err
	}
	evaluated := s.evaluate(ctx, *view)
	return &evaluated, nil
}

// List returns the tickets visible to actor, newest first.
func (s *TicketService) List(ctx context.Context, actor domain.Actor, input TicketListInput) ([]domain.TicketView, error) {
	base := repository.TicketFilter{
		Priority:   input.Priority,
		AssigneeID: input.AssigneeID,
		Search:     input.Search,
		Limit:      input.Limit,
		Offset:     input.Offset,
	}
	if input.Status != nil {
		base.Statuses = []domain.TicketStatus{*input.Status}
	}

	tickets, err := s.scopedTickets(ctx, actor, base)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, tickets)
}

// HighRisk returns the visible unresolved tickets at HIGH_RISK or BREACHED.
func (s *TicketService) HighRisk(ctx context.Context, actor domain.Actor) ([]domain.TicketView, error) {
	tickets, err := s.scopedTickets(ctx, actor, repository.TicketFilter{Statuses: unresolvedStatuses})
	if err != nil {
		return nil, err
	}
	views, err := s.views(ctx, tickets)
	if err != nil {
		return nil, err
	}
	result := make([]domain.TicketView, 0, len(views))
	for _, v := range views {
		if v.SLA.RiskLevel.Rank() >= domain.RiskLevelHighRisk.Rank() {
			result = append(result, v)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SLA.RiskPercentage > result[j].SLA.RiskPercentage
	})
	return result, nil
}

// Escalated lists escalated tickets: all of them for managers, their own
// for senior technicians.
func (s *TicketService) Escalated(ctx context.Context, actor domain.Actor) ([]domain.TicketView, error) {
	if err := requireUser(actor, auth.ActionViewEscalated); err != nil {
		return nil, err
	}
	filter := repository.TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusEscalated}}
	if !auth.Can(actor.Role, auth.ActionViewAllTickets) {
		filter.AssigneeID = &actor.UserID
	}
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, tickets)
}

// Activity returns the audit trail of a ticket in order.
func (s *TicketService) Activity(ctx context.Context, actor domain.Actor, id int64) ([]domain.ActivityLogEntry, error) {
	ticket, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return s.activity.ListByTicket(ctx, id)
}

// UnresolvedViews projects every unresolved ticket without running the
// escalation policy. It feeds the periodic sweep.
func (s *TicketService) UnresolvedViews(ctx context.Context) ([]domain.TicketView, error) {
	tickets, err := s.tickets.List(ctx, repository.TicketFilter{Statuses: unresolvedStatuses})
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	views := make([]domain.TicketView, 0, len(tickets))
	for i := range tickets {
		view, err := s.project(&tickets[i], now)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// Accept assigns the ticket to the acting technician.
func (s *TicketService) Accept(ctx context.Context, actor domain.Actor, ticketID int64) (*domain.TicketView, error) {
	ticket, previous, err := s.transition(ctx, ticketID, func(t *domain.Ticket, now timeOf) (*domain.ActivityLogEntry, error) {
		return lifecycle.Accept(t, actor, now())
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, actor, ticket.ID, events.EventTicketAccepted, events.TicketAssignedPayload{
		PreviousAssigneeID: previous.AssigneeID,
		AssigneeID:         actor.UserID,
	})
	return s.project(ticket, s.clock.Now())
}

// Reassign hands the ticket to another technician (managers only).
func (s *TicketService) Reassign(ctx context.Context, actor domain.Actor, ticketID, assigneeID int64) (*domain.TicketView, error) {
	if _, err := s.tickets.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	if err := requireUser(actor, auth.ActionReassignTicket); err != nil {
		return nil, err
	}
	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return nil, apperrors.NewValidationError("assignee does not exist", map[string]any{"assignee_id": assigneeID})
		}
		return nil, err
	}

	ticket, previous, err := s.transition(ctx, ticketID, func(t *domain.Ticket, now timeOf) (*domain.ActivityLogEntry, error) {
		return lifecycle.Reassign(t, actor, assignee, now())
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, actor, ticket.ID, events.EventTicketReassigned, events.TicketAssignedPayload{
		PreviousAssigneeID: previous.AssigneeID,
		AssigneeID:         assignee.ID,
	})
	return s.project(ticket, s.clock.Now())
}

// Escalate moves the ticket to ESCALATED. Without an explicit senior a
// senior assignee keeps the ticket, otherwise the senior technician with the
// fewest open tickets takes it; when there is none the ticket is left
// unassigned. The system actor is used by the automatic policy and goes
// through the same version-checked path. It never escalates a ticket a
// senior technician is already working on.
func (s *TicketService) Escalate(ctx context.Context, actor domain.Actor, ticketID int64, seniorID *int64) (*domain.TicketView, error) {
	current, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.System {
		if err := auth.Require(actor.Role, auth.ActionEscalateTicket); err != nil {
			return nil, err
		}
	}
	heldBySenior, err := s.heldBySenior(ctx, current)
	if err != nil {
		return nil, err
	}
	if actor.System && heldBySenior && current.Status == domain.TicketStatusInProgress {
		return nil, apperrors.NewConflict("ticket is already with a senior technician", map[string]any{"ticket_id": ticketID})
	}
	senior := current.AssigneeID
	if seniorID != nil || !heldBySenior {
		senior, err = s.resolveSenior(ctx, seniorID)
		if err != nil {
			return nil, err
		}
	}
	before, err := s.project(current, s.clock.Now())
	if err != nil {
		return nil, err
	}

	ticket, previous, err := s.transition(ctx, ticketID, func(t *domain.Ticket, now timeOf) (*domain.ActivityLogEntry, error) {
		return lifecycle.Escalate(t, actor, senior, now())
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, actor, ticket.ID, events.EventTicketEscalated, events.TicketEscalatedPayload{
		PreviousAssigneeID: previous.AssigneeID,
		SeniorID:           ticket.AssigneeID,
		Automatic:          actor.System,
		Title:              ticket.Title,
		RiskPercentage:     before.SLA.RiskPercentage,
		RiskLevel:          before.SLA.RiskLevel,
	})
	return s.project(ticket, s.clock.Now())
}

// UpdateProgress records a progress note from the assignee.
func (s *TicketService) UpdateProgress(ctx context.Context, actor domain.Actor, ticketID int64, notes string) (*domain.TicketView, error) {
	ticket, _, err := s.transition(ctx, ticketID, func(t *domain.Ticket, now timeOf) (*domain.ActivityLogEntry, error) {
		return lifecycle.UpdateProgress(t, actor, notes, now())
	})
	if err != nil {
		return nil, err
	}
	return s.project(ticket, s.clock.Now())
}

// Resolve closes the ticket.
func (s *TicketService) Resolve(ctx context.Context, actor domain.Actor, ticketID int64) (*domain.TicketView, error) {
	ticket, _, err := s.transition(ctx, ticketID, func(t *domain.Ticket, now timeOf) (*domain.ActivityLogEntry, error) {
		return lifecycle.Resolve(t, actor, now())
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, actor, ticket.ID, events.EventTicketResolved, events.TicketResolvedPayload{
		CreatedByID: ticket.CreatedByID,
		Title:       ticket.Title,
	})
	return s.project(ticket, s.clock.Now())
}

type timeOf func() time.Time

// transition reads the ticket, applies fn to a copy and stores it with a
// version check. A version conflict is retried once against a fresh read;
// errors from fn are returned as is.
func (s *TicketService) transition(ctx context.Context, ticketID int64, fn func(*domain.Ticket, timeOf) (*domain.ActivityLogEntry, error)) (*domain.Ticket, *domain.Ticket, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.tickets.Get(ctx, ticketID)
		if err != nil {
			return nil, nil, err
		}
		next := current.Clone()
		entry, err := fn(next, s.clock.Now)
		if err != nil {
			return nil, nil, err
		}
		err = s.tickets.ApplyTransition(ctx, next, current.Version, entry)
		if err == nil {
			return next, current, nil
		}
		if attempt == 1 && apperrors.HasCode(err, apperrors.CodeConflict) {
			s.logger.Debug("ticket version conflict, retrying", zap.Int64("ticket_id", ticketID))
			continue
		}
		return nil, nil, err
	}
}

func (s *TicketService) project(ticket *domain.Ticket, now time.Time) (*domain.TicketView, error) {
	limit, err := s.limits.LimitHoursFor(ticket.Priority)
	if err != nil {
		return nil, err
	}
	status, err := sla.Evaluate(ticket, limit, now)
	if err != nil {
		return nil, err
	}
	return &domain.TicketView{Ticket: *ticket, SLA: status}, nil
}

func (s *TicketService) views(ctx context.Context, tickets []domain.Ticket) ([]domain.TicketView, error) {
	now := s.clock.Now()
	views := make([]domain.TicketView, 0, len(tickets))
	for i := range tickets {
		view, err := s.project(&tickets[i], now)
		if err != nil {
			return nil, err
		}
		views = append(views, s.evaluate(ctx, *view))
	}
	return views, nil
}

// evaluate runs the escalation policy. Failures never fail the read.
func (s *TicketService) evaluate(ctx context.Context, view domain.TicketView) domain.TicketView {
	if s.engine == nil {
		return view
	}
	result, _, err := s.engine.Evaluate(ctx, view)
	if err != nil {
		s.logger.Warn("escalation policy failed on read", zap.Int64("ticket_id", view.ID), zap.Error(err))
		return view
	}
	return result
}

// scopedTickets applies role scoping: managers see everything, users see what
// they created, technicians see their own tickets plus the unassigned queue
// they are allowed to pick up.
// scopedTickets applies the role scope to base and returns one page of it.
// Single-query scopes page in the store; the technician view merges two
// queries and pages the merged result.
func (s *TicketService) scopedTickets(ctx context.Context, actor domain.Actor, base repository.TicketFilter) ([]domain.Ticket, error) {
	if actor.System || auth.Can(actor.Role, auth.ActionViewAllTickets) {
		return s.listPage(ctx, base)
	}
	if !actor.Role.IsTechnician() {
		base.CreatedByID = &actor.UserID
		return s.listPage(ctx, base)
	}

	limit, offset := base.Limit, base.Offset
	base.Offset = 0
	if limit > 0 {
		base.Limit = offset + limit
	}

	var result []domain.Ticket
	if base.AssigneeID == nil || *base.AssigneeID == actor.UserID {
		own := base
		own.AssigneeID = &actor.UserID
		tickets, err := s.tickets.List(ctx, own)
		if err != nil {
			return nil, err
		}
		result = append(result, tickets...)
	}
	if base.AssigneeID == nil {
		queueStatuses := []domain.TicketStatus{domain.TicketStatusOpen}
		if auth.Can(actor.Role, auth.ActionAcceptEscalated) {
			queueStatuses = append(queueStatuses, domain.TicketStatusEscalated)
		}
		queue := base
		queue.Unassigned = true
		queue.Statuses = intersectStatuses(base.Statuses, queueStatuses)
		if len(queue.Statuses) > 0 {
			tickets, err := s.tickets.List(ctx, queue)
			if err != nil {
				return nil, err
			}
			result = append(result, tickets...)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, limit, offset), nil
}

// listPage runs one store query. The stores only honour an offset together
// with a limit, so a bare offset is applied here.
func (s *TicketService) listPage(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil || filter.Limit > 0 || filter.Offset <= 0 {
		return tickets, err
	}
	return paginate(tickets, 0, filter.Offset), nil
}

// resolveSenior validates an explicit senior or picks the least loaded one.
func (s *TicketService) resolveSenior(ctx context.Context, seniorID *int64) (*int64, error) {
	if seniorID != nil {
		user, err := s.users.GetByID(ctx, *seniorID)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeNotFound) {
				return nil, apperrors.NewValidationError("senior technician does not exist", map[string]any{"senior_id": *seniorID})
			}
			return nil, err
		}
		if user.Role != domain.RoleSeniorTechnician {
			return nil, apperrors.NewValidationError("escalation target must be a senior technician", map[string]any{"senior_id": *seniorID})
		}
		id := user.ID
		return &id, nil
	}

	seniors, err := s.users.ListByRole(ctx, domain.RoleSeniorTechnician)
	if err != nil {
		return nil, err
	}
	if len(seniors) == 0 {
		return nil, nil
	}
	workload, err := s.tickets.OpenWorkload(ctx)
	if err != nil {
		return nil, err
	}
	best := seniors[0]
	for _, candidate := range seniors[1:] {
		if workload[candidate.ID] < workload[best.ID] {
			best = candidate
		}
	}
	id := best.ID
	return &id, nil
}

func (s *TicketService) heldBySenior(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	if ticket.AssigneeID == nil {
		return false, nil
	}
	user, err := s.users.GetByID(ctx, *ticket.AssigneeID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.Role == domain.RoleSeniorTechnician, nil
}

func (s *TicketService) technician(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return nil, apperrors.NewValidationError("assignee does not exist", map[string]any{"assignee_id": userID})
		}
		return nil, err
	}
	if !user.Role.IsTechnician() {
		return nil, apperrors.NewValidationError("assignee must be a technician", map[string]any{"assignee_id": userID})
	}
	return user, nil
}

func (s *TicketService) publishEvent(ctx context.Context, actor domain.Actor, ticketID int64, eventType events.EventType, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actor.ActorRef(),
		Timestamp: s.clock.Now(),
		Payload:   payload,
	})
}

var unresolvedStatuses = []domain.TicketStatus{
	domain.TicketStatusOpen,
	domain.TicketStatusInProgress,
	domain.TicketStatusEscalated,
}

func canView(actor domain.Actor, ticket *domain.Ticket) bool {
	if actor.System || auth.Can(actor.Role, auth.ActionViewAllTickets) {
		return true
	}
	if ticket.CreatedByID != nil && *ticket.CreatedByID == actor.UserID {
		return true
	}
	if actor.Role.IsTechnician() {
		return ticket.AssigneeID == nil || ticket.IsAssignedTo(actor.UserID)
	}
	return false
}

func requireUser(actor domain.Actor, action auth.Action) error {
	if actor.System {
		return apperrors.NewForbidden("system actor cannot perform " + string(action))
	}
	return auth.Require(actor.Role, action)
}

func intersectStatuses(requested, allowed []domain.TicketStatus) []domain.TicketStatus {
	if len(requested) == 0 {
		return allowed
	}
	var out []domain.TicketStatus
	for _, r := range requested {
		for _, a := range allowed {
			if r == a {
				out = append(out, r)
			}
		}
	}
	return out
}

func paginate(tickets []domain.Ticket, limit, offset int) []domain.Ticket {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tickets) {
		return []domain.Ticket{}
	}
	tickets = tickets[offset:]
	if limit > 0 && limit < len(tickets) {
		tickets = tickets[:limit]
	}
	return tickets
}
