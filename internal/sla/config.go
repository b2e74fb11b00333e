package sla

import (
	"sync"

	"github.com/spec-kit/sla-guard/internal/domain"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// DefaultLimits are used for any priority without an explicit configuration.
var DefaultLimits = map[domain.TicketPriority]float64{
	domain.TicketPriorityCritical: 4,
	domain.TicketPriorityHigh:     8,
	domain.TicketPriorityMedium:   24,
	domain.TicketPriorityLow:      48,
}

// Config is the process-wide priority to allowed-hours mapping. It is safe
// for concurrent use; updates only affect evaluations made afterwards.
type Config struct {
	mu     sync.RWMutex
	limits map[domain.TicketPriority]float64
}

// NewConfig seeds a Config from DefaultLimits overridden by limits.
func NewConfig(limits map[domain.TicketPriority]float64) (*Config, error) {
	c := &Config{limits: make(map[domain.TicketPriority]float64, len(DefaultLimits))}
	for priority, hours := range DefaultLimits {
		c.limits[priority] = hours
	}
	for priority, hours := range limits {
		if err := c.SetLimitHours(priority, hours); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LimitHoursFor returns the allowed hours for priority.
func (c *Config) LimitHoursFor(priority domain.TicketPriority) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hours, ok := c.limits[priority]
	if !ok {
		return 0, apperrors.NewInvalidConfiguration("no sla limit for priority", map[string]any{"priority": priority})
	}
	return hours, nil
}

// SetLimitHours replaces the allowed hours for priority.
func (c *Config) SetLimitHours(priority domain.TicketPriority, hours float64) error {
	if !priority.Valid() {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	if !validLimit(hours) {
		return apperrors.NewInvalidConfiguration("sla limit must be a finite positive number of hours", map[string]any{"priority": priority})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits[priority] = hours
	return nil
}

// Snapshot returns a copy of the current mapping.
func (c *Config) Snapshot() map[domain.TicketPriority]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[domain.TicketPriority]float64, len(c.limits))
	for priority, hours := range c.limits {
		out[priority] = hours
	}
	return out
}
