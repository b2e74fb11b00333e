// Package escalation decides when a ticket's SLA risk warrants action and
// carries it out through the regular ticket service path.
package escalation

import (
	"github.com/spec-kit/sla-guard/internal/domain"
)

const (
	DefaultAutoEscalatePercent = 90
	DefaultWarningPercent      = 50
)

// Policy holds the escalation thresholds in risk percent.
type Policy struct {
	AutoEscalatePercent float64
	WarningPercent      float64
}

// DefaultPolicy returns the canonical thresholds.
func DefaultPolicy() Policy {
	return Policy{AutoEscalatePercent: DefaultAutoEscalatePercent, WarningPercent: DefaultWarningPercent}
}

// Decision is the outcome of evaluating one ticket view.
type Decision struct {
	Escalate       bool
	NotifyAssignee bool
	Level          domain.RiskLevel
}

// Decide evaluates view against the highest level previously observed for
// the ticket. The assignee notification is edge-triggered: it only fires when
// the level climbs above that high-water mark.
func (p Policy) Decide(view domain.TicketView, previousHigh domain.RiskLevel) Decision {
	d := Decision{Level: view.SLA.RiskLevel}
	switch view.Status {
	case domain.TicketStatusOpen, domain.TicketStatusInProgress:
		d.Escalate = view.SLA.RiskPercentage >= p.AutoEscalatePercent
	case domain.TicketStatusResolved:
		return d
	}
	d.NotifyAssignee = view.AssigneeID != nil &&
		view.SLA.RiskPercentage >= p.WarningPercent &&
		view.SLA.RiskLevel.Rank() > previousHigh.Rank()
	return d
}
