package memory

import (
	"context"
	"sync"

	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/repository"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// SLAConfigRepository keeps SLA overrides in memory.
type SLAConfigRepository struct {
	mu     sync.Mutex
	limits map[domain.TicketPriority]float64
}

var _ repository.SLAConfigRepository = (*SLAConfigRepository)(nil)

// NewSLAConfigRepository returns an empty repository.
func NewSLAConfigRepository() *SLAConfigRepository {
	return &SLAConfigRepository{limits: map[domain.TicketPriority]float64{}}
}

func (r *SLAConfigRepository) Load(ctx context.Context) (map[domain.TicketPriority]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext("load sla config", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[domain.TicketPriority]float64, len(r.limits))
	for priority, hours := range r.limits {
		out[priority] = hours
	}
	return out, nil
}

func (r *SLAConfigRepository) Save(ctx context.Context, priority domain.TicketPriority, limitHours float64) error {
	if err := ctx.Err(); err != nil {
		return apperrors.FromContext("save sla config", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.limits[priority] = limitHours
	return nil
}
