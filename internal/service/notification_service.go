package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/events"
	"github.com/spec-kit/sla-guard/internal/notify"
	"github.com/spec-kit/sla-guard/internal/repository"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

const defaultInboxLimit = 50

// NotificationService turns domain events into notifications and serves
// the per-user inbox.
type NotificationService struct {
	dispatcher events.Dispatcher
	sink       notify.Sink
	inbox      repository.NotificationRepository
	users      repository.UserRepository
	logger     *zap.Logger
}

// NotificationDependencies bundles collaborators for notification service.
type NotificationDependencies struct {
	Dispatcher       events.Dispatcher
	Sink             notify.Sink
	NotificationRepo repository.NotificationRepository
	UserRepo         repository.UserRepository
	Logger           *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	n := &NotificationService{
		dispatcher: deps.Dispatcher,
		sink:       deps.Sink,
		inbox:      deps.NotificationRepo,
		users:      deps.UserRepo,
		logger:     deps.Logger,
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	return n
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketReassigned, n.handleTicketReassigned)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	n.dispatcher.Subscribe(events.EventTicketResolved, n.handleTicketResolved)
	n.dispatcher.Subscribe(events.EventSLAWarning, n.handleSLAWarning)
	n.dispatcher.Subscribe(events.EventCommentAdded, n.handleCommentAdded)
}

// List returns the actor's inbox, newest first.
func (n *NotificationService) List(ctx context.Context, actor domain.Actor, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if actor.System {
		return nil, apperrors.NewForbidden("system actor has no inbox")
	}
	if limit <= 0 || limit > 200 {
		limit = defaultInboxLimit
	}
	return n.inbox.ListByUser(ctx, actor.UserID, unreadOnly, limit)
}

// MarkRead flips the read flag of one of the actor's notifications.
func (n *NotificationService) MarkRead(ctx context.Context, actor domain.Actor, id int64) (*domain.Notification, error) {
	if actor.System {
		return nil, apperrors.NewForbidden("system actor has no inbox")
	}
	return n.inbox.MarkRead(ctx, id, actor.UserID)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok || payload.AssigneeID == nil {
		return nil
	}
	if event.ActorID != nil && *event.ActorID == *payload.AssigneeID {
		return nil
	}
	msg := fmt.Sprintf("Ticket #%d %q was assigned to you", event.TicketID, payload.Title)
	return n.emit(ctx, event, []int64{*payload.AssigneeID}, msg, domain.SeverityInfo)
}

func (n *NotificationService) handleTicketReassigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return nil
	}
	if err := n.emit(ctx, event, []int64{payload.AssigneeID},
		fmt.Sprintf("Ticket #%d was assigned to you", event.TicketID), domain.SeverityInfo); err != nil {
		return err
	}
	if payload.PreviousAssigneeID == nil || *payload.PreviousAssigneeID == payload.AssigneeID {
		return nil
	}
	return n.emit(ctx, event, []int64{*payload.PreviousAssigneeID},
		fmt.Sprintf("Ticket #%d was reassigned to another technician", event.TicketID), domain.SeverityInfo)
}

func (n *NotificationService) handleTicketEscalated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketEscalatedPayload)
	if !ok {
		return nil
	}

	roles := []domain.Role{domain.RoleSeniorTechnician}
	msg := fmt.Sprintf("Ticket #%d %q was escalated", event.TicketID, payload.Title)
	if payload.Automatic {
		roles = append(roles, domain.RoleManager)
		msg = fmt.Sprintf("Ticket #%d %q auto-escalated at %.1f%% of its SLA (%s)",
			event.TicketID, payload.Title, payload.RiskPercentage, payload.RiskLevel)
	}
	targets, err := n.userIDs(ctx, roles...)
	if err != nil {
		return err
	}
	if err := n.emit(ctx, event, targets, msg, domain.SeverityAlert); err != nil {
		return err
	}

	if payload.PreviousAssigneeID == nil {
		return nil
	}
	if payload.SeniorID != nil && *payload.SeniorID == *payload.PreviousAssigneeID {
		return nil
	}
	return n.emit(ctx, event, []int64{*payload.PreviousAssigneeID},
		fmt.Sprintf("Ticket #%d was escalated and taken off your queue", event.TicketID), domain.SeverityInfo)
}

func (n *NotificationService) handleTicketResolved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketResolvedPayload)
	if !ok || payload.CreatedByID == nil {
		return nil
	}
	if event.ActorID != nil && *event.ActorID == *payload.CreatedByID {
		return nil
	}
	msg := fmt.Sprintf("Ticket #%d %q was resolved", event.TicketID, payload.Title)
	return n.emit(ctx, event, []int64{*payload.CreatedByID}, msg, domain.SeverityInfo)
}

func (n *NotificationService) handleSLAWarning(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SLAWarningPayload)
	if !ok {
		return nil
	}
	msg := fmt.Sprintf("Ticket #%d %q is at %.1f%% of its SLA (%s), %.2fh remaining",
		event.TicketID, payload.Title, payload.RiskPercentage, payload.RiskLevel, payload.RemainingHours)
	return n.emit(ctx, event, []int64{payload.AssigneeID}, msg, domain.SeverityInfo)
}

func (n *NotificationService) handleCommentAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CommentAddedPayload)
	if !ok || payload.Internal || payload.AssigneeID == nil {
		return nil
	}
	if *payload.AssigneeID == payload.AuthorID {
		return nil
	}
	msg := fmt.Sprintf("New comment on ticket #%d", event.TicketID)
	return n.emit(ctx, event, []int64{*payload.AssigneeID}, msg, domain.SeverityInfo)
}

func (n *NotificationService) emit(ctx context.Context, event events.Event, targets []int64, msg string, severity domain.NotificationSeverity) error {
	if n.sink == nil || len(targets) == 0 {
		return nil
	}
	ticketID := event.TicketID
	n.logger.Debug("notification emitted",
		zap.String("event_type", string(event.Type)),
		zap.Int64("ticket_id", ticketID),
		zap.Int("targets", len(targets)),
		zap.String("severity", string(severity)))
	return n.sink.Emit(ctx, targets, msg, severity, &ticketID)
}

func (n *NotificationService) userIDs(ctx context.Context, roles ...domain.Role) ([]int64, error) {
	users, err := n.users.ListByRole(ctx, roles...)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}
