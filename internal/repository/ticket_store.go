package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-guard/internal/domain"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// TicketFilter narrows ticket listings. A zero Limit returns every match.
type TicketFilter struct {
	Statuses    []domain.TicketStatus
	Priority    *domain.TicketPriority
	AssigneeID  *int64
	Unassigned  bool
	CreatedByID *int64
	Search      string
	Limit       int
	Offset      int
}

// TicketStore persists tickets. ApplyTransition is a compare-and-swap on the
// ticket version and writes the activity entry in the same unit of work.
type TicketStore interface {
	Get(ctx context.Context, id int64) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Create(ctx context.Context, ticket *domain.Ticket, entry *domain.ActivityLogEntry) error
	ApplyTransition(ctx context.Context, ticket *domain.Ticket, expectedVersion int64, entry *domain.ActivityLogEntry) error
	OpenWorkload(ctx context.Context) (map[int64]int, error)
}

type ticketStore struct {
	pool     *pgxpool.Pool
	deadline deadline
}

// NewTicketStore returns a Postgres-backed TicketStore.
func NewTicketStore(pool *pgxpool.Pool, timeout time.Duration) TicketStore {
	return &ticketStore{pool: pool, deadline: newDeadline(timeout)}
}

const ticketColumns = `id, title, customer, description, priority, status, assignee_id,
               created_by_id, created_at, updated_at, resolved_at, version`

func (s *ticketStore) Get(ctx context.Context, id int64) (*domain.Ticket, error) {
	ctx, cancel := s.deadline.bound(ctx)
	defer cancel()

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate("get ticket", "ticket", id, err)
	}
	return ticket, nil
}

func (s *ticketStore) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	ctx, cancel := s.deadline.bound(ctx)
	defer cancel()

	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "assignee_id IS NULL")
	}
	if filter.CreatedByID != nil {
		args = append(args, *filter.CreatedByID)
		clauses = append(clauses, fmt.Sprintf("created_by_id=$%d", len(args)))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, "%"+strings.ToLower(term)+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(customer) LIKE %s)", placeholder, placeholder))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id DESC`,
		ticketColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate("list tickets", "ticket", nil, err)
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, translate("list tickets", "ticket", nil, err)
		}
		result = append(result, *ticket)
	}
	return result, translate("list tickets", "ticket", nil, rows.Err())
}

func (s *ticketStore) Create(ctx context.Context, ticket *domain.Ticket, entry *domain.ActivityLogEntry) error {
	ctx, cancel := s.deadline.bound(ctx)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const insertTicket = `
        INSERT INTO tickets (title, customer, description, priority, status, assignee_id, created_by_id, created_at, updated_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1)
        RETURNING id, version`
		if err := tx.QueryRow(ctx, insertTicket,
			ticket.Title,
			ticket.Customer,
			ticket.Description,
			ticket.Priority,
			ticket.Status,
			ticket.AssigneeID,
			ticket.CreatedByID,
			ticket.CreatedAt,
			ticket.UpdatedAt,
		).Scan(&ticket.ID, &ticket.Version); err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		entry.TicketID = ticket.ID
		return insertActivity(ctx, tx, entry)
	})
	return translate("create ticket", "ticket", nil, err)
}

func (s *ticketStore) ApplyTransition(ctx context.Context, ticket *domain.Ticket, expectedVersion int64, entry *domain.ActivityLogEntry) error {
	ctx, cancel := s.deadline.bound(ctx)
	defer cancel()

	var newVersion int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const update = `
        UPDATE tickets SET status=$1, assignee_id=$2, resolved_at=$3, updated_at=$4, version=version+1
        WHERE id=$5 AND version=$6
        RETURNING version`
		err := tx.QueryRow(ctx, update,
			ticket.Status,
			ticket.AssigneeID,
			ticket.ResolvedAt,
			ticket.UpdatedAt,
			ticket.ID,
			expectedVersion,
		).Scan(&newVersion)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return apperrors.NewNotFound("ticket", map[string]any{"id": ticket.ID})
			}
			return apperrors.NewConflict("ticket was modified concurrently", map[string]any{
				"ticket_id":        ticket.ID,
				"expected_version": expectedVersion,
			})
		}
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		entry.TicketID = ticket.ID
		return insertActivity(ctx, tx, entry)
	})
	if err != nil {
		return translate("apply transition", "ticket", ticket.ID, err)
	}
	ticket.Version = newVersion
	return nil
}

func (s *ticketStore) OpenWorkload(ctx context.Context) (map[int64]int, error) {
	ctx, cancel := s.deadline.bound(ctx)
	defer cancel()

	const query = `
        SELECT assignee_id, COUNT(*) FROM tickets
        WHERE assignee_id IS NOT NULL AND status <> 'RESOLVED'
        GROUP BY assignee_id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, translate("ticket workload", "ticket", nil, err)
	}
	defer rows.Close()

	result := make(map[int64]int)
	for rows.Next() {
		var (
			assignee int64
			count    int
		)
		if err := rows.Scan(&assignee, &count); err != nil {
			return nil, translate("ticket workload", "ticket", nil, err)
		}
		result[assignee] = count
	}
	return result, translate("ticket workload", "ticket", nil, rows.Err())
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Customer,
		&ticket.Description,
		&ticket.Priority,
		&ticket.Status,
		&ticket.AssigneeID,
		&ticket.CreatedByID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.Version,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
