package service

import (
	"context"
	"sort"

	"github.com/spec-kit/sla-guard/internal/auth"
	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/repository"
)

// Overview aggregates the tickets visible to the caller.
type Overview struct {
	Total                  int                           `json:"total"`
	ByStatus               map[domain.TicketStatus]int   `json:"by_status"`
	ByPriority             map[domain.TicketPriority]int `json:"by_priority"`
	HighRisk               int                           `json:"high_risk"`
	Breached               int                           `json:"breached"`
	AverageResolutionHours float64                       `json:"average_resolution_hours"`
}

// TechnicianLoad is one row of the workload report.
type TechnicianLoad struct {
	UserID     int64       `json:"user_id"`
	Name       string      `json:"name"`
	Role       domain.Role `json:"role"`
	InProgress int         `json:"in_progress"`
	Escalated  int         `json:"escalated"`
	Resolved   int         `json:"resolved"`
	AtRisk     int         `json:"at_risk"`
}

// AnalyticsService computes dashboard aggregates over SLA projections.
type AnalyticsService struct {
	tickets *TicketService
	users   repository.UserRepository
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(tickets *TicketService, users repository.UserRepository) *AnalyticsService {
	return &AnalyticsService{tickets: tickets, users: users}
}

// Overview returns counts for the caller's visible tickets.
func (s *AnalyticsService) Overview(ctx context.Context, actor domain.Actor) (*Overview, error) {
	views, err := s.tickets.List(ctx, actor, TicketListInput{})
	if err != nil {
		return nil, err
	}
	out := &Overview{
		ByStatus:   map[domain.TicketStatus]int{},
		ByPriority: map[domain.TicketPriority]int{},
	}
	var resolvedHours float64
	var resolved int
	for _, v := range views {
		out.Total++
		out.ByStatus[v.Status]++
		out.ByPriority[v.Priority]++
		if v.Status == domain.TicketStatusResolved {
			resolved++
			resolvedHours += v.SLA.ElapsedHours
			continue
		}
		switch v.SLA.RiskLevel {
		case domain.RiskLevelHighRisk:
			out.HighRisk++
		case domain.RiskLevelBreached:
			out.Breached++
		}
	}
	if resolved > 0 {
		out.AverageResolutionHours = resolvedHours / float64(resolved)
	}
	return out, nil
}

// RiskDistribution counts the caller's unresolved tickets per risk level.
func (s *AnalyticsService) RiskDistribution(ctx context.Context, actor domain.Actor) (map[domain.RiskLevel]int, error) {
	views, err := s.tickets.List(ctx, actor, TicketListInput{})
	if err != nil {
		return nil, err
	}
	out := map[domain.RiskLevel]int{
		domain.RiskLevelSafe:     0,
		domain.RiskLevelWarning:  0,
		domain.RiskLevelHighRisk: 0,
		domain.RiskLevelBreached: 0,
	}
	for _, v := range views {
		if v.Status == domain.TicketStatusResolved {
			continue
		}
		out[v.SLA.RiskLevel]++
	}
	return out, nil
}

// TechnicianWorkload reports per-technician load, busiest first.
func (s *AnalyticsService) TechnicianWorkload(ctx context.Context, actor domain.Actor) ([]TechnicianLoad, error) {
	if err := requireUser(actor, auth.ActionViewTechnicianWorkload); err != nil {
		return nil, err
	}
	techs, err := s.users.ListByRole(ctx, domain.RoleTechnician, domain.RoleSeniorTechnician)
	if err != nil {
		return nil, err
	}
	views, err := s.tickets.List(ctx, actor, TicketListInput{})
	if err != nil {
		return nil, err
	}

	rows := make(map[int64]*TechnicianLoad, len(techs))
	out := make([]TechnicianLoad, len(techs))
	for i, u := range techs {
		out[i] = TechnicianLoad{UserID: u.ID, Name: u.Name, Role: u.Role}
		rows[u.ID] = &out[i]
	}
	for _, v := range views {
		if v.AssigneeID == nil {
			continue
		}
		row, ok := rows[*v.AssigneeID]
		if !ok {
			continue
		}
		switch v.Status {
		case domain.TicketStatusInProgress:
			row.InProgress++
		case domain.TicketStatusEscalated:
			row.Escalated++
		case domain.TicketStatusResolved:
			row.Resolved++
			continue
		}
		if v.SLA.RiskLevel.Rank() >= domain.RiskLevelHighRisk.Rank() {
			row.AtRisk++
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].InProgress+out[i].Escalated > out[j].InProgress+out[j].Escalated
	})
	return out, nil
}
