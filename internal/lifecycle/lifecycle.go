// Package lifecycle holds the ticket state machine. Every transition works on a
// caller-owned copy of the ticket and returns the activity entry to persist
// alongside it; nothing here touches storage or the clock.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/sla-guard/internal/auth"
	"github.com/spec-kit/sla-guard/internal/domain"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// Accept assigns the ticket to the acting technician and starts work on it.
// Escalated tickets may only be picked up by senior technicians.
func Accept(t *domain.Ticket, actor domain.Actor, now time.Time) (*domain.ActivityLogEntry, error) {
	if err := authorize(actor, auth.ActionAcceptTicket); err != nil {
		return nil, err
	}
	switch t.Status {
	case domain.TicketStatusOpen:
	case domain.TicketStatusEscalated:
		if err := auth.Require(actor.Role, auth.ActionAcceptEscalated); err != nil {
			return nil, err
		}
	case domain.TicketStatusInProgress, domain.TicketStatusResolved:
		return nil, apperrors.NewConflict("ticket already accepted", details(t))
	default:
		return nil, invalid(t, "accept")
	}

	assignee := actor.UserID
	t.AssigneeID = &assignee
	t.Status = domain.TicketStatusInProgress
	t.UpdatedAt = now
	return entry(t, domain.ActionAccepted, actor, now, ""), nil
}

// Reassign hands the ticket to another technician. Open tickets move to
// IN_PROGRESS; otherwise the status is kept.
func Reassign(t *domain.Ticket, actor domain.Actor, assignee *domain.User, now time.Time) (*domain.ActivityLogEntry, error) {
	if err := authorize(actor, auth.ActionReassignTicket); err != nil {
		return nil, err
	}
	if assignee == nil || !assignee.Role.IsTechnician() {
		return nil, apperrors.NewValidationError("assignee must be a technician", nil)
	}
	if t.Status == domain.TicketStatusResolved {
		return nil, invalid(t, "reassign")
	}
	if t.IsAssignedTo(assignee.ID) {
		return nil, apperrors.NewConflict("ticket already assigned to this technician", details(t))
	}

	id := assignee.ID
	t.AssigneeID = &id
	if t.Status == domain.TicketStatusOpen {
		t.Status = domain.TicketStatusInProgress
	}
	t.UpdatedAt = now
	return entry(t, domain.ActionReassigned, actor, now, fmt.Sprintf("assigned to user %d", assignee.ID)), nil
}

// Escalate moves the ticket to ESCALATED and hands it to seniorID. A nil
// seniorID leaves the ticket unassigned. The system actor may always escalate;
// technicians only escalate tickets they hold.
func Escalate(t *domain.Ticket, actor domain.Actor, seniorID *int64, now time.Time) (*domain.ActivityLogEntry, error) {
	if !actor.System {
		if err := auth.Require(actor.Role, auth.ActionEscalateTicket); err != nil {
			return nil, err
		}
	}
	switch t.Status {
	case domain.TicketStatusOpen, domain.TicketStatusInProgress:
	case domain.TicketStatusEscalated:
		return nil, apperrors.NewConflict("ticket already escalated", details(t))
	default:
		return nil, invalid(t, "escalate")
	}
	if !actor.System && !auth.Can(actor.Role, auth.ActionEscalateAnyTicket) && !t.IsAssignedTo(actor.UserID) {
		return nil, apperrors.NewForbidden("only the assignee may escalate this ticket")
	}

	action := domain.ActionEscalated
	if actor.System {
		action = domain.ActionAutoEscalated
	}
	detail := "no senior technician available"
	t.AssigneeID = nil
	if seniorID != nil {
		id := *seniorID
		t.AssigneeID = &id
		detail = fmt.Sprintf("escalated to user %d", id)
	}
	t.Status = domain.TicketStatusEscalated
	t.UpdatedAt = now
	return entry(t, action, actor, now, detail), nil
}

// UpdateProgress records a progress note from the assignee.
func UpdateProgress(t *domain.Ticket, actor domain.Actor, notes string, now time.Time) (*domain.ActivityLogEntry, error) {
	if err := authorize(actor, auth.ActionUpdateProgress); err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, apperrors.NewValidationError("progress notes are required", nil)
	}
	if t.Status != domain.TicketStatusInProgress {
		return nil, invalid(t, "update progress")
	}
	if !t.IsAssignedTo(actor.UserID) {
		return nil, apperrors.NewForbidden("only the assignee may update progress")
	}

	t.UpdatedAt = now
	return entry(t, domain.ActionProgressUpdate, actor, now, notes), nil
}

// Resolve closes the ticket. ResolvedAt is set once and never moves.
func Resolve(t *domain.Ticket, actor domain.Actor, now time.Time) (*domain.ActivityLogEntry, error) {
	if err := authorize(actor, auth.ActionResolveTicket); err != nil {
		return nil, err
	}
	switch t.Status {
	case domain.TicketStatusInProgress, domain.TicketStatusEscalated:
	case domain.TicketStatusResolved:
		return nil, apperrors.NewConflict("ticket already resolved", details(t))
	default:
		return nil, invalid(t, "resolve")
	}
	if !auth.Can(actor.Role, auth.ActionResolveAnyTicket) && !t.IsAssignedTo(actor.UserID) {
		return nil, apperrors.NewForbidden("only the assignee or a manager may resolve this ticket")
	}

	resolvedAt := now
	t.Status = domain.TicketStatusResolved
	t.ResolvedAt = &resolvedAt
	t.UpdatedAt = now
	return entry(t, domain.ActionResolved, actor, now, ""), nil
}

func authorize(actor domain.Actor, action auth.Action) error {
	if actor.System {
		return apperrors.NewForbidden("system actor cannot perform " + string(action))
	}
	return auth.Require(actor.Role, action)
}

func entry(t *domain.Ticket, action domain.ActivityAction, actor domain.Actor, now time.Time, detail string) *domain.ActivityLogEntry {
	return &domain.ActivityLogEntry{
		TicketID:  t.ID,
		Action:    action,
		ActorID:   actor.ActorRef(),
		Timestamp: now,
		Detail:    detail,
	}
}

func invalid(t *domain.Ticket, transition string) error {
	return apperrors.NewInvalidTransition(
		fmt.Sprintf("cannot %s a ticket in status %s", transition, t.Status),
		details(t),
	)
}

func details(t *domain.Ticket) map[string]any {
	return map[string]any{"ticket_id": t.ID, "status": t.Status}
}
