package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/repository"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// CommentRepository keeps comments in memory.
type CommentRepository struct {
	mu       sync.Mutex
	nextID   int64
	comments map[int64]domain.Comment
}

var _ repository.CommentRepository = (*CommentRepository)(nil)

// NewCommentRepository returns an empty repository.
func NewCommentRepository() *CommentRepository {
	return &CommentRepository{comments: map[int64]domain.Comment{}}
}

func (r *CommentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	if err := ctx.Err(); err != nil {
		return apperrors.FromContext("create comment", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	comment.ID = r.nextID
	r.comments[comment.ID] = *comment
	return nil
}

func (r *CommentRepository) GetByID(ctx context.Context, id int64) (*domain.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext("get comment", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	comment, ok := r.comments[id]
	if !ok {
		return nil, apperrors.NewNotFound("comment", map[string]any{"id": id})
	}
	return &comment, nil
}

func (r *CommentRepository) ListByTicket(ctx context.Context, ticketID int64, includeInternal bool) ([]domain.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext("list comments", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Comment
	for _, comment := range r.comments {
		if comment.TicketID != ticketID || (comment.IsInternal && !includeInternal) {
			continue
		}
		result = append(result, comment)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *CommentRepository) Update(ctx context.Context, comment *domain.Comment) error {
	if err := ctx.Err(); err != nil {
		return apperrors.FromContext("update comment", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.comments[comment.ID]
	if !ok {
		return apperrors.NewNotFound("comment", map[string]any{"id": comment.ID})
	}
	current.Body = comment.Body
	current.UpdatedAt = comment.UpdatedAt
	r.comments[comment.ID] = current
	return nil
}

func (r *CommentRepository) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return apperrors.FromContext("delete comment", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.comments[id]; !ok {
		return apperrors.NewNotFound("comment", map[string]any{"id": id})
	}
	delete(r.comments, id)
	return nil
}
