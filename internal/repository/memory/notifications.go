package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/repository"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// NotificationRepository keeps the inbox in memory.
type NotificationRepository struct {
	mu            sync.Mutex
	nextID        int64
	notifications map[int64]domain.Notification
}

var _ repository.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository returns an empty repository.
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{notifications: map[int64]domain.Notification{}}
}

func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []*domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return apperrors.FromContext("create notifications", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range notifications {
		r.nextID++
		n.ID = r.nextID
		n.Read = false
		r.notifications[n.ID] = *n
	}
	return nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext("list notifications", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Notification
	for _, n := range r.notifications {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID int64) (*domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext("mark notification read", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok || n.UserID != userID {
		return nil, apperrors.NewNotFound("notification", map[string]any{"id": id})
	}
	n.Read = true
	r.notifications[id] = n
	return &n, nil
}
