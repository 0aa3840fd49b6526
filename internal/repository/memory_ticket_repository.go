package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leaftogo/deskbot/internal/domain"
)

// memoryTicketRepository keeps tickets in process memory. It backs the
// bot when no Postgres DSN is configured and doubles as the test
// implementation; the conditional-update contract matches the SQL one.
type memoryTicketRepository struct {
	mu      sync.Mutex
	seq     int64
	tickets map[int64]domain.Ticket
}

// NewMemoryTicketRepository instantiates the in-memory repository.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{tickets: make(map[int64]domain.Ticket)}
}

func (r *memoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	now := time.Now().UTC()
	ticket.ID = r.seq
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r *memoryTicketRepository) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, nil
	}
	copied := cloneTicket(ticket)
	return &copied, nil
}

func (r *memoryTicketRepository) Find(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := r.matchLocked(filter)
	if filter.OrderByDone {
		sort.Slice(matched, func(i, j int) bool {
			a, b := matched[i].DoneAt, matched[j].DoneAt
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return a.After(*b)
			}
		})
	} else {
		sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *memoryTicketRepository) Count(_ context.Context, filter TicketFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matchLocked(filter)), nil
}

func (r *memoryTicketRepository) ConditionalUpdate(_ context.Context, id int64, guard UpdateGuard, update TicketUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return false, nil
	}
	if guard.Status != nil && ticket.Status != *guard.Status {
		return false, nil
	}
	if guard.MatchAssignee && !assigneeEqual(ticket.AssigneeID, guard.Assignee) {
		return false, nil
	}

	if update.Status != nil {
		ticket.Status = *update.Status
	}
	if update.Priority != nil {
		ticket.Priority = *update.Priority
	}
	if update.ClearAssignee {
		ticket.AssigneeID = nil
		ticket.AssigneeName = ""
	} else if update.AssigneeID != nil {
		assignee := *update.AssigneeID
		ticket.AssigneeID = &assignee
		if update.AssigneeName != nil {
			ticket.AssigneeName = *update.AssigneeName
		}
	}
	if update.Reason != nil {
		ticket.Reason = *update.Reason
	}
	if update.StartedAt != nil {
		started := *update.StartedAt
		ticket.StartedAt = &started
	}
	if update.DoneAt != nil {
		done := *update.DoneAt
		ticket.DoneAt = &done
	}
	ticket.UpdatedAt = time.Now().UTC()

	r.tickets[id] = ticket
	return true, nil
}

func (r *memoryTicketRepository) matchLocked(filter TicketFilter) []domain.Ticket {
	var matched []domain.Ticket
	searchID, searchByID := parseTicketRef(strings.TrimSpace(filter.Search))

	for _, ticket := range r.tickets {
		if filter.Kind != nil && ticket.Kind != *filter.Kind {
			continue
		}
		if filter.Status != nil && ticket.Status != *filter.Status {
			continue
		}
		if filter.AuthorID != nil && ticket.AuthorID != *filter.AuthorID {
			continue
		}
		if filter.AssigneeID != nil && !ticket.AssignedTo(*filter.AssigneeID) {
			continue
		}
		if filter.UnassignedOnly && ticket.AssigneeID != nil {
			continue
		}
		if filter.CreatedFrom != nil && ticket.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.DoneFrom != nil && (ticket.DoneAt == nil || ticket.DoneAt.Before(*filter.DoneFrom)) {
			continue
		}
		if search := strings.TrimSpace(filter.Search); search != "" {
			if searchByID {
				if ticket.ID != searchID {
					continue
				}
			} else if !ticketMatchesSearch(ticket, search) {
				continue
			}
		}
		matched = append(matched, cloneTicket(ticket))
	}
	return matched
}

func ticketMatchesSearch(ticket domain.Ticket, search string) bool {
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(ticket.Description), needle) ||
		strings.Contains(strings.ToLower(ticket.Location), needle) ||
		strings.Contains(strings.ToLower(ticket.Equipment), needle)
}

func assigneeEqual(current, expected *int64) bool {
	if current == nil || expected == nil {
		return current == nil && expected == nil
	}
	return *current == *expected
}

func cloneTicket(ticket domain.Ticket) domain.Ticket {
	if ticket.AssigneeID != nil {
		assignee := *ticket.AssigneeID
		ticket.AssigneeID = &assignee
	}
	if ticket.StartedAt != nil {
		started := *ticket.StartedAt
		ticket.StartedAt = &started
	}
	if ticket.DoneAt != nil {
		done := *ticket.DoneAt
		ticket.DoneAt = &done
	}
	return ticket
}
