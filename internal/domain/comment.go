package domain

import "time"

// Comment is a discussion entry on a ticket. Internal comments are manager-only.
type Comment struct {
	ID         int64
	TicketID   int64
	AuthorID   int64
	Body       string
	IsInternal bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
