// Package sla computes SLA risk for tickets and holds the priority to
// allowed-hours mapping.
package sla

import (
	"math"
	"time"

	"github.com/spec-kit/sla-guard/internal/domain"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// Level thresholds in percent of the SLA limit, evaluated highest first.
const (
	BreachedPercent = 100.0
	HighRiskPercent = 75.0
	WarningPercent  = 50.0
)

// Risk maps elapsed time against the allowed limit to a percentage capped
// at 100 and its discrete level.
func Risk(elapsedHours, limitHours float64) (float64, domain.RiskLevel, error) {
	if !validLimit(limitHours) {
		return 0, "", apperrors.NewInvalidConfiguration("sla limit must be positive", map[string]any{"limit_hours": limitHours})
	}
	if elapsedHours < 0 || math.IsNaN(elapsedHours) {
		elapsedHours = 0
	}
	percentage := math.Min(BreachedPercent, BreachedPercent*elapsedHours/limitHours)
	return percentage, LevelFor(percentage), nil
}

// validLimit reports whether hours is a finite positive limit.
func validLimit(hours float64) bool {
	return hours > 0 && !math.IsInf(hours, 0)
}

// LevelFor classifies a risk percentage.
func LevelFor(percentage float64) domain.RiskLevel {
	switch {
	case percentage >= BreachedPercent:
		return domain.RiskLevelBreached
	case percentage >= HighRiskPercent:
		return domain.RiskLevelHighRisk
	case percentage >= WarningPercent:
		return domain.RiskLevelWarning
	default:
		return domain.RiskLevelSafe
	}
}

// ElapsedHours measures from creation to now, or to resolution once resolved.
func ElapsedHours(ticket *domain.Ticket, now time.Time) float64 {
	end := now
	if ticket.ResolvedAt != nil {
		end = *ticket.ResolvedAt
	}
	elapsed := end.Sub(ticket.CreatedAt).Hours()
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Evaluate projects the SLA status of ticket against limitHours at now.
func Evaluate(ticket *domain.Ticket, limitHours float64, now time.Time) (domain.SLAStatus, error) {
	elapsed := ElapsedHours(ticket, now)
	percentage, level, err := Risk(elapsed, limitHours)
	if err != nil {
		return domain.SLAStatus{}, err
	}
	return domain.SLAStatus{
		LimitHours:     limitHours,
		ElapsedHours:   elapsed,
		RemainingHours: math.Max(0, limitHours-elapsed),
		RiskPercentage: percentage,
		RiskLevel:      level,
	}, nil
}
