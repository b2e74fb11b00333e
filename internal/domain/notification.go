package domain

import "time"

// NotificationSeverity grades how urgent a notification is.
type NotificationSeverity string

const (
	SeverityInfo    NotificationSeverity = "INFO"
	SeverityWarning NotificationSeverity = "WARNING"
	SeverityAlert   NotificationSeverity = "ALERT"
)

// Notification is an inbox entry for one user. Only Read may change after creation.
type Notification struct {
	ID        int64
	UserID    int64
	Message   string
	Severity  NotificationSeverity
	Read      bool
	TicketID  *int64
	CreatedAt time.Time
}
