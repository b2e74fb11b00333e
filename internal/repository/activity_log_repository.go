package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-guard/internal/domain"
)

// ActivityLogRepository reads the append-only audit trail. Entries are written
// by TicketStore together with the transition they record.
type ActivityLogRepository interface {
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.ActivityLogEntry, error)
}

type activityLogRepository struct {
	pool     *pgxpool.Pool
	deadline deadline
}

// NewActivityLogRepository builds repository.
func NewActivityLogRepository(pool *pgxpool.Pool, timeout time.Duration) ActivityLogRepository {
	return &activityLogRepository{pool: pool, deadline: newDeadline(timeout)}
}

func insertActivity(ctx context.Context, tx pgx.Tx, entry *domain.ActivityLogEntry) error {
	const query = `
        INSERT INTO activity_logs (ticket_id, action, actor_id, detail, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	return tx.QueryRow(ctx, query,
		entry.TicketID,
		entry.Action,
		entry.ActorID,
		entry.Detail,
		entry.Timestamp,
	).Scan(&entry.ID)
}

func (r *activityLogRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.ActivityLogEntry, error) {
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	const query = `
        SELECT id, ticket_id, action, actor_id, detail, created_at
        FROM activity_logs WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, translate("list activity", "activity log", ticketID, err)
	}
	defer rows.Close()

	var result []domain.ActivityLogEntry
	for rows.Next() {
		var entry domain.ActivityLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Action,
			&entry.ActorID,
			&entry.Detail,
			&entry.Timestamp,
		); err != nil {
			return nil, translate("list activity", "activity log", ticketID, err)
		}
		result = append(result, entry)
	}
	return result, translate("list activity", "activity log", ticketID, rows.Err())
}
