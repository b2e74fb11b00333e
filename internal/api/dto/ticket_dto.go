package dto

import (
	"time"

	"github.com/spec-kit/sla-guard/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Customer    string                `json:"customer"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	AssigneeID  *int64                `json:"assignee_id"`
}

// ReassignRequest payload.
type ReassignRequest struct {
	AssigneeID int64 `json:"assignee_id"`
}

// EscalateRequest payload. SeniorID is optional.
type EscalateRequest struct {
	SeniorID *int64 `json:"senior_id"`
}

// ProgressRequest payload.
type ProgressRequest struct {
	Notes string `json:"notes"`
}

// SLAResponse is the live risk projection of a ticket.
type SLAResponse struct {
	LimitHours     float64          `json:"limit_hours"`
	ElapsedHours   float64          `json:"elapsed_hours"`
	RemainingHours float64          `json:"remaining_hours"`
	RiskPercentage float64          `json:"risk_percentage"`
	RiskLevel      domain.RiskLevel `json:"risk_level"`
}

// TicketResponse provides ticket info with its SLA status.
type TicketResponse struct {
	ID          int64                 `json:"id"`
	Title       string                `json:"title"`
	Customer    string                `json:"customer"`
	Description string                `json:"description,omitempty"`
	Priority    domain.TicketPriority `json:"priority"`
	Status      domain.TicketStatus   `json:"status"`
	AssigneeID  *int64                `json:"assignee_id"`
	CreatedByID *int64                `json:"created_by_id,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	ResolvedAt  *time.Time            `json:"resolved_at,omitempty"`
	Version     int64                 `json:"version"`
	SLA         SLAResponse           `json:"sla"`
}

// ActivityResponse is one audit entry.
type ActivityResponse struct {
	ID        int64                 `json:"id"`
	Action    domain.ActivityAction `json:"action"`
	ActorID   *int64                `json:"actor_id"`
	Timestamp time.Time             `json:"timestamp"`
	Detail    string                `json:"detail,omitempty"`
}

// NewTicketResponse maps a projected ticket.
func NewTicketResponse(v *domain.TicketView) TicketResponse {
	return TicketResponse{
		ID:          v.ID,
		Title:       v.Title,
		Customer:    v.Customer,
		Description: v.Description,
		Priority:    v.Priority,
		Status:      v.Status,
		AssigneeID:  v.AssigneeID,
		CreatedByID: v.CreatedByID,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
		ResolvedAt:  v.ResolvedAt,
		Version:     v.Version,
		SLA: SLAResponse{
			LimitHours:     v.SLA.LimitHours,
			ElapsedHours:   v.SLA.ElapsedHours,
			RemainingHours: v.SLA.RemainingHours,
			RiskPercentage: v.SLA.RiskPercentage,
			RiskLevel:      v.SLA.RiskLevel,
		},
	}
}

// NewTicketList maps a slice of views.
func NewTicketList(views []domain.TicketView) []TicketResponse {
	out := make([]TicketResponse, 0, len(views))
	for i := range views {
		out = append(out, NewTicketResponse(&views[i]))
	}
	return out
}

// NewActivityList maps audit entries.
func NewActivityList(entries []domain.ActivityLogEntry) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ActivityResponse{
			ID:        e.ID,
			Action:    e.Action,
			ActorID:   e.ActorID,
			Timestamp: e.Timestamp,
			Detail:    e.Detail,
		})
	}
	return out
}
