package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-guard/internal/domain"
)

// NotificationRepository stores the in-app inbox. Only the read flag of a
// stored notification ever changes.
type NotificationRepository interface {
	CreateBatch(ctx context.Context, notifications []*domain.Notification) error
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, userID int64) (*domain.Notification, error)
}

type notificationRepository struct {
	pool     *pgxpool.Pool
	deadline deadline
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool, timeout time.Duration) NotificationRepository {
	return &notificationRepository{pool: pool, deadline: newDeadline(timeout)}
}

func (r *notificationRepository) CreateBatch(ctx context.Context, notifications []*domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	const query = `
        INSERT INTO notifications (user_id, message, severity, is_read, ticket_id, created_at)
        VALUES ($1,$2,$3,FALSE,$4,$5)
        RETURNING id`
	batch := &pgx.Batch{}
	for _, n := range notifications {
		batch.Queue(query, n.UserID, n.Message, n.Severity, n.TicketID, n.CreatedAt)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, n := range notifications {
		if err := results.QueryRow().Scan(&n.ID); err != nil {
			return translate("create notifications", "notification", nil, err)
		}
	}
	return nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]domain.Notification, error) {
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	query := `
        SELECT id, user_id, message, severity, is_read, ticket_id, created_at
        FROM notifications WHERE user_id=$1 AND (NOT $2 OR NOT is_read)
        ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.pool.Query(ctx, query, userID, unreadOnly)
	if err != nil {
		return nil, translate("list notifications", "notification", nil, err)
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, translate("list notifications", "notification", nil, err)
		}
		result = append(result, n)
	}
	return result, translate("list notifications", "notification", nil, rows.Err())
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID int64) (*domain.Notification, error) {
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	const query = `
        UPDATE notifications SET is_read=TRUE WHERE id=$1 AND user_id=$2
        RETURNING id, user_id, message, severity, is_read, ticket_id, created_at`
	var n domain.Notification
	if err := scanNotification(r.pool.QueryRow(ctx, query, id, userID), &n); err != nil {
		return nil, translate("mark notification read", "notification", id, err)
	}
	return &n, nil
}

func scanNotification(row rowScanner, n *domain.Notification) error {
	return row.Scan(
		&n.ID,
		&n.UserID,
		&n.Message,
		&n.Severity,
		&n.Read,
		&n.TicketID,
		&n.CreatedAt,
	)
}
