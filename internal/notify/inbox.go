package notify

import (
	"context"

	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/repository"
)

// InboxTransport stores one notification per target for the in-app inbox.
type InboxTransport struct {
	repo repository.NotificationRepository
}

// NewInboxTransport builds the transport.
func NewInboxTransport(repo repository.NotificationRepository) *InboxTransport {
	return &InboxTransport{repo: repo}
}

func (t *InboxTransport) Name() string { return "inbox" }

func (t *InboxTransport) Deliver(ctx context.Context, d Delivery) error {
	batch := make([]*domain.Notification, 0, len(d.Targets))
	for _, userID := range d.Targets {
		n := &domain.Notification{
			UserID:    userID,
			Message:   d.Message,
			Severity:  d.Severity,
			CreatedAt: d.CreatedAt,
		}
		if d.TicketID != nil {
			id := *d.TicketID
			n.TicketID = &id
		}
		batch = append(batch, n)
	}
	return t.repo.CreateBatch(ctx, batch)
}
