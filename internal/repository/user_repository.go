package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-guard/internal/domain"
)

// UserRepository defines persistence access for accounts of every role.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListByRole(ctx context.Context, roles ...domain.Role) ([]domain.User, error)
}

type userRepository struct {
	pool     *pgxpool.Pool
	deadline deadline
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool, timeout time.Duration) UserRepository {
	return &userRepository{pool: pool, deadline: newDeadline(timeout)}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	const query = `
        INSERT INTO users (name, email, password_hash, role, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		user.Name,
		strings.ToLower(user.Email),
		user.PasswordHash,
		user.Role,
		user.CreatedAt,
	).Scan(&user.ID)
	return translate("create user", "user", nil, err)
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	const query = `SELECT id, name, email, password_hash, role, created_at FROM users WHERE id=$1`
	var user domain.User
	if err := scanUser(r.pool.QueryRow(ctx, query, id), &user); err != nil {
		return nil, translate("get user", "user", id, err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	const query = `SELECT id, name, email, password_hash, role, created_at FROM users WHERE email=$1`
	var user domain.User
	if err := scanUser(r.pool.QueryRow(ctx, query, strings.ToLower(email)), &user); err != nil {
		return nil, translate("get user by email", "user", email, err)
	}
	return &user, nil
}

func (r *userRepository) ListByRole(ctx context.Context, roles ...domain.Role) ([]domain.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	ctx, cancel := r.deadline.bound(ctx)
	defer cancel()

	args := make([]any, len(roles))
	placeholders := make([]string, len(roles))
	for i, role := range roles {
		args[i] = role
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`SELECT id, name, email, password_hash, role, created_at
        FROM users WHERE role IN (%s) ORDER BY id`, strings.Join(placeholders, ","))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate("list users", "user", nil, err)
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		var user domain.User
		if err := scanUser(rows, &user); err != nil {
			return nil, translate("list users", "user", nil, err)
		}
		result = append(result, user)
	}
	return result, translate("list users", "user", nil, rows.Err())
}

func scanUser(row rowScanner, user *domain.User) error {
	return row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
	)
}
