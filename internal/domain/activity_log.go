package domain

import "time"

// ActivityAction names the state-affecting action recorded in the log.
type ActivityAction string

const (
	ActionCreated        ActivityAction = "CREATED"
	ActionAccepted       ActivityAction = "ACCEPTED"
	ActionReassigned     ActivityAction = "REASSIGNED"
	ActionEscalated      ActivityAction = "ESCALATED"
	ActionAutoEscalated  ActivityAction = "AUTO_ESCALATED"
	ActionProgressUpdate ActivityAction = "PROGRESS_UPDATE"
	ActionResolved       ActivityAction = "RESOLVED"
)

// ActivityLogEntry is an immutable audit trail entry. A nil ActorID means the system.
type ActivityLogEntry struct {
	ID        int64
	TicketID  int64
	Action    ActivityAction
	ActorID   *int64
	Timestamp time.Time
	Detail    string
}
