// Package memory provides process-local implementations of the repository
// ports. They back tests and the no-database development mode.
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

// TicketStore keeps tickets and their activity log in memory. It implements
// both repository.TicketStore and repository.ActivityLogRepository.
type TicketStore struct {
	mu          sync.Mutex
	nextID      int64
	nextEntryID int64
	tickets     map[int64]*domain.Ticket
	activity    map[int64][]domain.ActivityLogEntry
}

var (
	_ repository.TicketStore           = (*TicketStore)(nil)
	_ repository.ActivityLogRepository = (*TicketStore)(nil)
)

// NewTicketStore returns an empty store.
func NewTicketStore() *TicketStore {
	return &TicketStore{
		tickets:  map[int64]*domain.Ticket{},
		activity: map[int64][]domain.ActivityLogEntry{},
	}
}

// Get returns a copy of the ticket.
func (s *TicketStore) Get(ctx context.Context, id int64) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext("get ticket", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tk, ok := s.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return tk.Clone(), nil
}

// List returns copies of the matching tickets, newest first.
func (s *TicketStore) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext("list tickets", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]domain.Ticket, 0, len(s.tickets))
	for _, tk := range s.tickets {
		if matchesTicket(filter, tk) {
			matches = append(matches, *tk.Clone())
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	if filter.Limit > 0 {
		start := filter.Offset
		if start < 0 {
			start = 0
		}
		if start > len(matches) {
			start = len(matches)
		}
		end := start + filter.Limit
		if end > len(matches) {
			end = len(matches)
		}
		matches = matches[start:end]
	}
	return matches, nil
}

// Create stores a new ticket at version 1 together with its creation entry.
func (s *TicketStore) Create(ctx context.Context, ticket *domain.Ticket, entry *domain.ActivityLogEntry) error {
	if err := ctx.Err(); err != nil {
		return apperrors.FromContext("create ticket", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	ticket.ID = s.nextID
	ticket.Version = 1
	s.tickets[ticket.ID] = ticket.Clone()
	if entry != nil {
		entry.TicketID = ticket.ID
		s.appendLocked(entry)
	}
	return nil
}

// ApplyTransition replaces the stored ticket when its version still equals
// expectedVersion and appends entry atomically.
func (s *TicketStore) ApplyTransition(ctx context.Context, ticket *domain.Ticket, expectedVersion int64, entry *domain.ActivityLogEntry) error {
	if err := ctx.Err(); err != nil {
		return apperrors.FromContext("apply transition", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tickets[ticket.ID]
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"id": ticket.ID})
	}
	if current.Version != expectedVersion {
		return apperrors.NewConflict("ticket was modified concurrently", map[string]any{
			"ticket_id":        ticket.ID,
			"expected_version": expectedVersion,
		})
	}

	ticket.Version = expectedVersion + 1
	stored := ticket.Clone()
	// Creation facts are immutable.
	stored.CreatedAt = current.CreatedAt
	stored.CreatedByID = current.CreatedByID
	s.tickets[ticket.ID] = stored
	if entry != nil {
		entry.TicketID = ticket.ID
		s.appendLocked(entry)
	}
	return nil
}

// OpenWorkload counts unresolved tickets per assignee.
func (s *TicketStore) OpenWorkload(ctx context.Context) (map[int64]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext("ticket workload", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[int64]int)
	for _, tk := range s.tickets {
		if tk.AssigneeID != nil && tk.Status != domain.TicketStatusResolved {
			result[*tk.AssigneeID]++
		}
	}
	return result, nil
}

// ListByTicket returns the activity entries of a ticket in insertion order.
func (s *TicketStore) ListByTicket(ctx context.Context, ticketID int64) ([]domain.ActivityLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext("list activity", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.activity[ticketID]
	out := make([]domain.ActivityLogEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *TicketStore) appendLocked(entry *domain.ActivityLogEntry) {
	s.nextEntryID++
	entry.ID = s.nextEntryID
	stored := *entry
	if entry.ActorID != nil {
		id := *entry.ActorID
		stored.ActorID = &id
	}
	s.activity[entry.TicketID] = append(s.activity[entry.TicketID], stored)
}

func matchesTicket(filter repository.TicketFilter, tk *domain.Ticket) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if tk.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Priority != nil && tk.Priority != *filter.Priority {
		return false
	}
	if filter.AssigneeID != nil && !tk.IsAssignedTo(*filter.AssigneeID) {
		return false
	}
	if filter.Unassigned && tk.AssigneeID != nil {
		return false
	}
	if filter.CreatedByID != nil && (tk.CreatedByID == nil || *tk.CreatedByID != *filter.CreatedByID) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		if !strings.Contains(strings.ToLower(tk.Title), term) && !strings.Contains(strings.ToLower(tk.Customer), term) {
			return false
		}
	}
	return true
}
