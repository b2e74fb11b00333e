package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-guard/internal/domain"
)

// SLAConfigRepository persists per-priority SLA limits.
type SLAConfigRepository interface {
	Load(ctx context.Context) (map[domain.TicketPriority]float64, error)
	Save(ctx context.Context, priority domain.TicketPriority, limitHours float64) error
}

type slaConfigRepository struct {
	pool     *pgxpool.Pool
	deadline deadline
}

// NewSLAConfigRepository builds repository.
func NewSLAConfigRepository(pool *pgxpool.Pool, timeout time.Duration) SLAConfigRepository {
	return &slaConfigRepository{pool: pool, deadline: newDeadline(timeout)}
}

func (r *slaConfigRepository) Load(ctx context.Context) (map[domain.TicketPriority]float64, error) {
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT priority, limit_hours FROM sla_configs`)
	if err != nil {
		return nil, translate("load sla config", "sla config", nil, err)
	}
	defer rows.Close()

	result := make(map[domain.TicketPriority]float64)
	for rows.Next() {
		var (
			priority domain.TicketPriority
			hours    float64
		)
		if err := rows.Scan(&priority, &hours); err != nil {
			return nil, translate("load sla config", "sla config", nil, err)
		}
		result[priority] = hours
	}
	return result, translate("load sla config", "sla config", nil, rows.Err())
}

func (r *slaConfigRepository) Save(ctx context.Context, priority domain.TicketPriority, limitHours float64) error {
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	const query = `
        INSERT INTO sla_configs (priority, limit_hours, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (priority) DO UPDATE SET limit_hours=EXCLUDED.limit_hours, updated_at=NOW()`
	_, err := r.pool.Exec(ctx, query, priority, limitHours)
	return translate("save sla config", "sla config", priority, err)
}
