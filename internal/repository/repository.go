// Package repository holds the persistence ports and their Postgres
// implementations. Every call is bounded by the configured store timeout and
// returns errorutil domain errors for missing rows and expired deadlines.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

const uniqueViolation = "23505"

// DefaultTimeout applies when a repository is built with a zero timeout.
const DefaultTimeout = 3 * time.Second

type rowScanner interface {
	Scan(dest ...any) error
}

type deadline struct {
	timeout time.Duration
}

func newDeadline(timeout time.Duration) deadline {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return deadline{timeout: timeout}
}

func (d deadline) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

// translate maps driver errors onto domain errors.
func translate(operation, resource string, id any, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeout(operation, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperrors.NewConflict(resource+" already exists", map[string]any{"constraint": pgErr.ConstraintName})
	}
	return fmt.Errorf("%s: %w", operation, err)
}
