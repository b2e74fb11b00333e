package domain

// RiskLevel classifies how close a ticket is to breaching its SLA.
type RiskLevel string

const (
	RiskLevelSafe     RiskLevel = "SAFE"
	RiskLevelWarning  RiskLevel = "WARNING"
	RiskLevelHighRisk RiskLevel = "HIGH_RISK"
	RiskLevelBreached RiskLevel = "BREACHED"
)

// Rank orders levels so callers can compare severity. Unknown levels rank below SAFE.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLevelSafe:
		return 0
	case RiskLevelWarning:
		return 1
	case RiskLevelHighRisk:
		return 2
	case RiskLevelBreached:
		return 3
	}
	return -1
}

// SLAStatus is the derived SLA projection of a ticket.
type SLAStatus struct {
	LimitHours     float64
	ElapsedHours   float64
	RemainingHours float64
	RiskPercentage float64
	RiskLevel      RiskLevel
}

// RiskLevelForRank is the inverse of Rank. Ranks outside 0..3 yield "".
func RiskLevelForRank(rank int) RiskLevel {
	switch rank {
	case 0:
		return RiskLevelSafe
	case 1:
		return RiskLevelWarning
	case 2:
		return RiskLevelHighRisk
	case 3:
		return RiskLevelBreached
	}
	return ""
}
