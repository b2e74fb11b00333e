// Package notify delivers notifications to users through one or more
// transports. Delivery is fire-and-forget for callers: a failed transport is
// logged and queued for redelivery instead of failing the caller.
package notify

import (
	"context"
	"time"

	"github.com/spec-kit/sla-guard/internal/domain"
)

// Sink is the outbound notification port used by the ticket core.
type Sink interface {
	Emit(ctx context.Context, targetUserIDs []int64, message string, severity domain.NotificationSeverity, ticketID *int64) error
}

// Delivery is one notification addressed to a set of users. It is the wire
// payload for the external transports and the unit of redelivery.
type Delivery struct {
	ID        string                      `json:"id"`
	Targets   []int64                     `json:"targets"`
	Message   string                      `json:"message"`
	Severity  domain.NotificationSeverity `json:"severity"`
	TicketID  *int64                      `json:"ticket_id,omitempty"`
	CreatedAt time.Time                   `json:"created_at"`
}

// Transport hands a Delivery to one destination.
type Transport interface {
	Name() string
	Deliver(ctx context.Context, delivery Delivery) error
}
