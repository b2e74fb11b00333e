package events

import (
	"time"

	"github.com/spec-kit/sla-guard/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketAccepted   EventType = "ticket_accepted"
	EventTicketReassigned EventType = "ticket_reassigned"
	EventTicketEscalated  EventType = "ticket_escalated"
	EventTicketResolved   EventType = "ticket_resolved"
	EventSLAWarning       EventType = "sla_warning"
	EventCommentAdded     EventType = "comment_added"
)

// Event represents a domain event emitted by services. A nil ActorID means
// the system raised it.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	ActorID   *int64      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title      string                `json:"title"`
	Priority   domain.TicketPriority `json:"priority"`
	AssigneeID *int64                `json:"assignee_id,omitempty"`
}

// TicketAssignedPayload is used for accept and reassign.
type TicketAssignedPayload struct {
	PreviousAssigneeID *int64 `json:"previous_assignee_id,omitempty"`
	AssigneeID         int64  `json:"assignee_id"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	PreviousAssigneeID *int64           `json:"previous_assignee_id,omitempty"`
	SeniorID           *int64           `json:"senior_id,omitempty"`
	Automatic          bool             `json:"automatic"`
	Title              string           `json:"title"`
	RiskPercentage     float64          `json:"risk_percentage"`
	RiskLevel          domain.RiskLevel `json:"risk_level"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	CreatedByID *int64 `json:"created_by_id,omitempty"`
	Title       string `json:"title"`
}

// SLAWarningPayload is raised when a ticket's risk level climbs above the
// highest level seen so far.
type SLAWarningPayload struct {
	AssigneeID     int64            `json:"assignee_id"`
	Title          string           `json:"title"`
	RiskPercentage float64          `json:"risk_percentage"`
	RiskLevel      domain.RiskLevel `json:"risk_level"`
	RemainingHours float64          `json:"remaining_hours"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	CommentID  int64  `json:"comment_id"`
	AuthorID   int64  `json:"author_id"`
	Internal   bool   `json:"internal"`
	AssigneeID *int64 `json:"assignee_id,omitempty"`
}
