package dto

import (
	"time"

	"github.com/spec-kit/sla-guard/internal/domain"
)

// CommentRequest payload for create and edit. Internal is ignored on edit.
type CommentRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

// CommentResponse payload.
type CommentResponse struct {
	ID         int64     `json:"id"`
	TicketID   int64     `json:"ticket_id"`
	AuthorID   int64     `json:"author_id"`
	Body       string    `json:"body"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NotificationResponse payload.
type NotificationResponse struct {
	ID        int64                       `json:"id"`
	Message   string                      `json:"message"`
	Severity  domain.NotificationSeverity `json:"severity"`
	Read      bool                        `json:"read"`
	TicketID  *int64                      `json:"ticket_id,omitempty"`
	CreatedAt time.Time                   `json:"created_at"`
}

// SLALimitRequest payload.
type SLALimitRequest struct {
	LimitHours float64 `json:"limit_hours"`
}

// NewCommentResponse maps a comment.
func NewCommentResponse(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:         c.ID,
		TicketID:   c.TicketID,
		AuthorID:   c.AuthorID,
		Body:       c.Body,
		IsInternal: c.IsInternal,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// NewNotificationResponse maps an inbox entry.
func NewNotificationResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Message:   n.Message,
		Severity:  n.Severity,
		Read:      n.Read,
		TicketID:  n.TicketID,
		CreatedAt: n.CreatedAt,
	}
}
