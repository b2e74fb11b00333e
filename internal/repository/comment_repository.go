package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-guard/internal/domain"
)

// CommentRepository persists ticket comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	GetByID(ctx context.Context, id int64) (*domain.Comment, error)
	ListByTicket(ctx context.Context, ticketID int64, includeInternal bool) ([]domain.Comment, error)
	Update(ctx context.Context, comment *domain.Comment) error
	Delete(ctx context.Context, id int64) error
}

type commentRepository struct {
	pool     *pgxpool.Pool
	deadline deadline
}

// NewCommentRepository builds repository.
func NewCommentRepository(pool *pgxpool.Pool, timeout time.Duration) CommentRepository {
	return &commentRepository{pool: pool, deadline: newDeadline(timeout)}
}

func (r *commentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	const query = `
        INSERT INTO comments (ticket_id, author_id, body, is_internal, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		comment.TicketID,
		comment.AuthorID,
		comment.Body,
		comment.IsInternal,
		comment.CreatedAt,
		comment.UpdatedAt,
	).Scan(&comment.ID)
	return translate("create comment", "comment", nil, err)
}

func (r *commentRepository) GetByID(ctx context.Context, id int64) (*domain.Comment, error) {
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	const query = `
        SELECT id, ticket_id, author_id, body, is_internal, created_at, updated_at
        FROM comments WHERE id=$1`
	var comment domain.Comment
	if err := scanComment(r.pool.QueryRow(ctx, query, id), &comment); err != nil {
		return nil, translate("get comment", "comment", id, err)
	}
	return &comment, nil
}

func (r *commentRepository) ListByTicket(ctx context.Context, ticketID int64, includeInternal bool) ([]domain.Comment, error) {
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	const query = `
        SELECT id, ticket_id, author_id, body, is_internal, created_at, updated_at
        FROM comments WHERE ticket_id=$1 AND ($2 OR NOT is_internal)
        ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID, includeInternal)
	if err != nil {
		return nil, translate("list comments", "comment", nil, err)
	}
	defer rows.Close()

	var result []domain.Comment
	for rows.Next() {
		var comment domain.Comment
		if err := scanComment(rows, &comment); err != nil {
			return nil, translate("list comments", "comment", nil, err)
		}
		result = append(result, comment)
	}
	return result, translate("list comments", "comment", nil, rows.Err())
}

func (r *commentRepository) Update(ctx context.Context, comment *domain.Comment) error {
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	const query = `UPDATE comments SET body=$1, updated_at=$2 WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, comment.Body, comment.UpdatedAt, comment.ID)
	if err != nil {
		return translate("update comment", "comment", comment.ID, err)
	}
	if cmd.RowsAffected() == 0 {
		return translate("update comment", "comment", comment.ID, pgx.ErrNoRows)
	}
	return nil
}

func (r *commentRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	cmd, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE id=$1`, id)
	if err != nil {
		return translate("delete comment", "comment", id, err)
	}
	if cmd.RowsAffected() == 0 {
		return translate("delete comment", "comment", id, pgx.ErrNoRows)
	}
	return nil
}

func scanComment(row rowScanner, comment *domain.Comment) error {
	return row.Scan(
		&comment.ID,
		&comment.TicketID,
		&comment.AuthorID,
		&comment.Body,
		&comment.IsInternal,
		&comment.CreatedAt,
		&comment.UpdatedAt,
	)
}
