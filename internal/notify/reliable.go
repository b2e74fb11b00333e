package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-guard/internal/clock"
	"github.com/spec-kit/sla-guard/internal/domain"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

const defaultMaxAttempts = 5

// RetryItem is a delivery that failed on one transport.
type RetryItem struct {
	Transport string   `json:"transport"`
	Delivery  Delivery `json:"delivery"`
	Attempts  int      `json:"attempts"`
	LastError string   `json:"last_error"`
}

// ErrMalformedRetryItem is returned by Pop for an entry that cannot be
// decoded. The entry has already been removed from the queue.
var ErrMalformedRetryItem = errors.New("malformed retry item")

// RetryQueue holds failed deliveries until they are redelivered. Pop returns
// nil when the queue is empty.
type RetryQueue interface {
	Push(ctx context.Context, item RetryItem) error
	Pop(ctx context.Context) (*RetryItem, error)
	Len(ctx context.Context) (int64, error)
}

// RedeliveryStats summarises one redelivery pass.
type RedeliveryStats struct {
	Delivered int
	Requeued  int
	Dropped   int
}

// Reliable fans a notification out to every transport. A transport failure is
// logged and queued; Emit only fails when the failure could not be queued.
type Reliable struct {
	transports  map[string]Transport
	order       []string
	queue       RetryQueue
	clock       clock.Clock
	logger      *zap.Logger
	maxAttempts int
}

// ReliableDependencies bundles collaborators for Reliable.
type ReliableDependencies struct {
	Transports  []Transport
	Queue       RetryQueue
	Clock       clock.Clock
	Logger      *zap.Logger
	MaxAttempts int
}

// NewReliable constructs the sink.
func NewReliable(deps ReliableDependencies) *Reliable {
	r := &Reliable{
		transports:  make(map[string]Transport, len(deps.Transports)),
		queue:       deps.Queue,
		clock:       deps.Clock,
		logger:      deps.Logger,
		maxAttempts: deps.MaxAttempts,
	}
	if r.queue == nil {
		r.queue = NewMemoryRetryQueue()
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	for _, t := range deps.Transports {
		r.transports[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Emit implements Sink.
func (r *Reliable) Emit(ctx context.Context, targetUserIDs []int64, message string, severity domain.NotificationSeverity, ticketID *int64) error {
	targets := dedupe(targetUserIDs)
	if len(targets) == 0 {
		return nil
	}
	d := Delivery{
		ID:        uuid.NewString(),
		Targets:   targets,
		Message:   message,
		Severity:  severity,
		TicketID:  ticketID,
		CreatedAt: r.clock.Now(),
	}

	var unrecorded []string
	for _, name := range r.order {
		err := r.transports[name].Deliver(ctx, d)
		if err == nil {
			continue
		}
		r.logger.Warn("notification delivery failed",
			zap.String("transport", name),
			zap.String("delivery_id", d.ID),
			zap.String("severity", string(severity)),
			zap.Int64s("targets", targets),
			zap.Error(err),
		)
		item := RetryItem{Transport: name, Delivery: d, Attempts: 1, LastError: err.Error()}
		if qerr := r.queue.Push(context.WithoutCancel(ctx), item); qerr != nil {
			r.logger.Error("unable to queue notification for retry",
				zap.String("transport", name),
				zap.String("delivery_id", d.ID),
				zap.Error(qerr),
			)
			unrecorded = append(unrecorded, name)
		}
	}
	if len(unrecorded) > 0 {
		return apperrors.NewDeliveryFailure(
			fmt.Errorf("delivery %s not queued for %v", d.ID, unrecorded),
			map[string]any{"delivery_id": d.ID, "transports": unrecorded},
		)
	}
	return nil
}

// Redeliver retries every item queued before the call. Items that keep
// failing are requeued until they reach the attempt limit and are dropped.
func (r *Reliable) Redeliver(ctx context.Context) (RedeliveryStats, error) {
	var stats RedeliveryStats
	pending, err := r.queue.Len(ctx)
	if err != nil {
		return stats, err
	}
	for i := int64(0); i < pending; i++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		item, err := r.queue.Pop(ctx)
		if errors.Is(err, ErrMalformedRetryItem) {
			r.logger.Error("dropping undecodable retry item", zap.Error(err))
			stats.Dropped++
			continue
		}
		if err != nil {
			return stats, err
		}
		if item == nil {
			break
		}
		transport, ok := r.transports[item.Transport]
		if !ok {
			r.logger.Warn("dropping notification for unknown transport",
				zap.String("transport", item.Transport),
				zap.String("delivery_id", item.Delivery.ID),
			)
			stats.Dropped++
			continue
		}
		err = transport.Deliver(ctx, item.Delivery)
		if err == nil {
			stats.Delivered++
			continue
		}
		item.LastError = err.Error()
		item.Attempts++
		if item.Attempts >= r.maxAttempts {
			r.logger.Error("notification dropped after retries",
				zap.String("transport", item.Transport),
				zap.String("delivery_id", item.Delivery.ID),
				zap.Int("attempts", item.Attempts),
				zap.String("last_error", item.LastError),
			)
			stats.Dropped++
			continue
		}
		if err := r.queue.Push(ctx, *item); err != nil {
			return stats, err
		}
		stats.Requeued++
	}
	return stats, nil
}

// Pending reports how many deliveries wait for redelivery.
func (r *Reliable) Pending(ctx context.Context) (int64, error) {
	return r.queue.Len(ctx)
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// MemoryRetryQueue is a process-local RetryQueue.
type MemoryRetryQueue struct {
	mu    sync.Mutex
	items []RetryItem
}

// NewMemoryRetryQueue returns an empty queue.
func NewMemoryRetryQueue() *MemoryRetryQueue {
	return &MemoryRetryQueue{}
}

func (q *MemoryRetryQueue) Push(_ context.Context, item RetryItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *MemoryRetryQueue) Pop(_ context.Context) (*RetryItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	return &item, nil
}

func (q *MemoryRetryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}
