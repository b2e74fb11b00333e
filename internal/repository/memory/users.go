package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/repository"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// UserRepository keeps accounts in memory.
type UserRepository struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]domain.User
}

var _ repository.UserRepository = (*UserRepository)(nil)

// NewUserRepository returns an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: map[int64]domain.User{}}
}

// Create stores user and assigns its id. Emails are unique case-insensitively.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return apperrors.FromContext("create user", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	for _, existing := range r.users {
		if existing.Email == email {
			return apperrors.NewConflict("user already exists", map[string]any{"email": email})
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.Email = email
	r.users[user.ID] = *user
	return nil
}

// GetByID returns a copy of the user.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext("get user", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
	}
	return &user, nil
}

// GetByEmail looks a user up by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext("get user by email", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = strings.ToLower(email)
	for _, user := range r.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, apperrors.NewNotFound("user", map[string]any{"id": email})
}

// ListByRole returns users holding any of roles, ordered by id.
func (r *UserRepository) ListByRole(ctx context.Context, roles ...domain.Role) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext("list users", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.User
	for _, user := range r.users {
		for _, role := range roles {
			if user.Role == role {
				result = append(result, user)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
