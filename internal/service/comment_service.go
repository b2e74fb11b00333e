package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-guard/internal/auth"
	"github.com/spec-kit/sla-guard/internal/clock"
	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/events"
	"github.com/spec-kit/sla-guard/internal/repository"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

const maxCommentLength = 4000

// CommentService manages ticket discussion threads.
type CommentService struct {
	comments   repository.CommentRepository
	tickets    repository.TicketStore
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// CommentDependencies bundles collaborators for comment service.
type CommentDependencies struct {
	CommentRepo repository.CommentRepository
	TicketStore repository.TicketStore
	Dispatcher  events.Dispatcher
	Clock       clock.Clock
	Logger      *zap.Logger
}

// NewCommentService constructs the service.
func NewCommentService(deps CommentDependencies) *CommentService {
	s := &CommentService{
		comments:   deps.CommentRepo,
		tickets:    deps.TicketStore,
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

// Add posts a comment on a ticket the actor can see.
func (s *CommentService) Add(ctx context.Context, actor domain.Actor, ticketID int64, body string, internal bool) (*domain.Comment, error) {
	ticket, err := s.visibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if internal {
		if err := auth.Require(actor.Role, auth.ActionWriteInternalComment); err != nil {
			return nil, err
		}
	}
	body, err = normalizeBody(body)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	comment := &domain.Comment{
		TicketID:   ticketID,
		AuthorID:   actor.UserID,
		Body:       body,
		IsInternal: internal,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventCommentAdded,
			TicketID:  ticketID,
			ActorID:   actor.ActorRef(),
			Timestamp: now,
			Payload: events.CommentAddedPayload{
				CommentID:  comment.ID,
				AuthorID:   actor.UserID,
				Internal:   internal,
				AssigneeID: ticket.AssigneeID,
			},
		})
	}
	return comment, nil
}

// List returns the ticket's comments in posting order. Internal comments are
// only included for roles allowed to read them.
func (s *CommentService) List(ctx context.Context, actor domain.Actor, ticketID int64) ([]domain.Comment, error) {
	if _, err := s.visibleTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	return s.comments.ListByTicket(ctx, ticketID, auth.Can(actor.Role, auth.ActionReadInternalComments))
}

// Edit replaces the body of the actor's own comment.
func (s *CommentService) Edit(ctx context.Context, actor domain.Actor, commentID int64, body string) (*domain.Comment, error) {
	comment, err := s.ownComment(ctx, actor, commentID)
	if err != nil {
		return nil, err
	}
	body, err = normalizeBody(body)
	if err != nil {
		return nil, err
	}
	comment.Body = body
	comment.UpdatedAt = s.clock.Now()
	if err := s.comments.Update(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// Delete removes the actor's own comment.
func (s *CommentService) Delete(ctx context.Context, actor domain.Actor, commentID int64) error {
	if _, err := s.ownComment(ctx, actor, commentID); err != nil {
		return err
	}
	return s.comments.Delete(ctx, commentID)
}

func (s *CommentService) visibleTicket(ctx context.Context, actor domain.Actor, ticketID int64) (*domain.Ticket, error) {
	if actor.System {
		return nil, apperrors.NewForbidden("system actor cannot comment")
	}
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

func (s *CommentService) ownComment(ctx context.Context, actor domain.Actor, commentID int64) (*domain.Comment, error) {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if actor.System || comment.AuthorID != actor.UserID {
		return nil, apperrors.NewForbidden("only the author can change a comment")
	}
	return comment, nil
}

func normalizeBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperrors.NewValidationError("comment body is required", nil)
	}
	if len(body) > maxCommentLength {
		return "", apperrors.NewValidationError("comment body too long", map[string]any{"max_length": maxCommentLength})
	}
	return body, nil
}
