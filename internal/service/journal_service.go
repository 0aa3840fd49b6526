package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leaftogo/deskbot/internal/domain"
	"github.com/leaftogo/deskbot/internal/repository"
)

// DefaultJournalDays is the completion journal window when the caller
// names none.
const DefaultJournalDays = 30

// exportBatchSize bounds the per-query row count while streaming a full
// export or journal out of the repository.
const exportBatchSize = 200

// TicketPage is one page of a ticket listing.
type TicketPage struct {
	Items []domain.Ticket
	Page  int
	Pages int
	Total int
}

// JournalService serves the read side: listings, search, the completion
// journal and CSV exports.
type JournalService struct {
	tickets repository.TicketRepository
	logger  *zap.Logger
}

// JournalDependencies bundles dependencies for the journal service.
type JournalDependencies struct {
	TicketRepo repository.TicketRepository
	Logger     *zap.Logger
}

// NewJournalService constructs the service.
func NewJournalService(deps JournalDependencies) *JournalService {
	return &JournalService{tickets: deps.TicketRepo, logger: deps.Logger}
}

// PeriodDays maps an export period name onto its window length.
func PeriodDays(period string) (int, bool) {
	switch period {
	case "week":
		return 7, true
	case "month":
		return 30, true
	default:
		return 0, false
	}
}

// MyTickets lists the tickets the actor authored, either kind.
func (s *JournalService) MyTickets(ctx context.Context, authorID int64, page int) (*TicketPage, error) {
	return s.page(ctx, repository.TicketFilter{AuthorID: &authorID}, page)
}

// AssignedTickets lists repair tickets assigned to the actor, optionally
// narrowed to one status.
func (s *JournalService) AssignedTickets(ctx context.Context, assigneeID int64, status *domain.TicketStatus, page int) (*TicketPage, error) {
	kind := domain.TicketKindRepair
	return s.page(ctx, repository.TicketFilter{
		Kind:       &kind,
		Status:     status,
		AssigneeID: &assigneeID,
	}, page)
}

// RepairQueue lists repair tickets for the viewer. Admins see every
// ticket in the requested status, or all of them. Technicians see the
// unassigned new pool plus their own tickets in the later statuses.
func (s *JournalService) RepairQueue(ctx context.Context, viewerID int64, admin bool, status *domain.TicketStatus, page int) (*TicketPage, error) {
	kind := domain.TicketKindRepair
	filter := repository.TicketFilter{Kind: &kind, Status: status}

	if !admin {
		switch {
		case status == nil || *status == domain.TicketStatusNew:
			newStatus := domain.TicketStatusNew
			filter.Status = &newStatus
			filter.UnassignedOnly = true
		case *status == domain.TicketStatusInWork, *status == domain.TicketStatusDone:
			filter.AssigneeID = &viewerID
		default:
			return &TicketPage{Page: 1, Pages: 0, Total: 0}, nil
		}
	}
	return s.page(ctx, filter, page)
}

// TechRepairOverview is the technician's repair feed: the unassigned new
// pool followed by their own tickets in work.
func (s *JournalService) TechRepairOverview(ctx context.Context, techID int64) ([]domain.Ticket, error) {
	kind := domain.TicketKindRepair
	newStatus := domain.TicketStatusNew
	inWork := domain.TicketStatusInWork

	fresh, err := s.tickets.Find(ctx, repository.TicketFilter{
		Kind:           &kind,
		Status:         &newStatus,
		UnassignedOnly: true,
	})
	if err != nil {
		return nil, err
	}
	mine, err := s.tickets.Find(ctx, repository.TicketFilter{
		Kind:       &kind,
		Status:     &inWork,
		AssigneeID: &techID,
	})
	if err != nil {
		return nil, err
	}
	return append(fresh, mine...), nil
}

// PurchaseQueue lists purchase tickets awaiting a decision.
func (s *JournalService) PurchaseQueue(ctx context.Context, page int) (*TicketPage, error) {
	kind := domain.TicketKindPurchase
	status := domain.TicketStatusNew
	return s.page(ctx, repository.TicketFilter{Kind: &kind, Status: &status}, page)
}

// Search finds tickets by free text or a "#42" reference.
func (s *JournalService) Search(ctx context.Context, query string, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.tickets.Find(ctx, repository.TicketFilter{Search: query, Limit: limit})
}

// Journal returns repairs completed within the last N days, most recent
// completion first.
func (s *JournalService) Journal(ctx context.Context, days int) ([]domain.Ticket, error) {
	if days <= 0 {
		days = DefaultJournalDays
	}
	kind := domain.TicketKindRepair
	status := domain.TicketStatusDone
	since := time.Now().UTC().AddDate(0, 0, -days)
	return s.collect(ctx, repository.TicketFilter{
		Kind:        &kind,
		Status:      &status,
		DoneFrom:    &since,
		OrderByDone: true,
	})
}

// ExportCSV renders every ticket created since the given time as CSV.
// The row count lets callers distinguish an empty report.
func (s *JournalService) ExportCSV(ctx context.Context, from time.Time) ([]byte, int, error) {
	tickets, err := s.collect(ctx, repository.TicketFilter{CreatedFrom: &from})
	if err != nil {
		return nil, 0, err
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	header := []string{
		"id", "kind", "status", "priority", "user_id", "username",
		"assignee_id", "assignee_name", "created_at", "started_at",
		"done_at", "duration", "reason", "description",
	}
	if err := writer.Write(header); err != nil {
		return nil, 0, err
	}
	for i := range tickets {
		ticket := &tickets[i]
		if err := writer.Write(exportRow(ticket)); err != nil {
			return nil, 0, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, 0, err
	}

	s.logger.Info("export rendered",
		zap.Int("rows", len(tickets)),
		zap.Time("from", from))
	return buf.Bytes(), len(tickets), nil
}

// page runs the count plus find pair behind every paginated listing.
func (s *JournalService) page(ctx context.Context, filter repository.TicketFilter, page int) (*TicketPage, error) {
	if page < 1 {
		page = 1
	}
	total, err := s.tickets.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	filter.Limit = repository.DefaultPageSize
	filter.Offset = (page - 1) * repository.DefaultPageSize

	items, err := s.tickets.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	pages := (total + repository.DefaultPageSize - 1) / repository.DefaultPageSize
	return &TicketPage{Items: items, Page: page, Pages: pages, Total: total}, nil
}

// collect drains every row matching the filter in batches.
func (s *JournalService) collect(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var all []domain.Ticket
	filter.Limit = exportBatchSize
	for offset := 0; ; offset += exportBatchSize {
		filter.Offset = offset
		batch, err := s.tickets.Find(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < exportBatchSize {
			return all, nil
		}
	}
}

func exportRow(ticket *domain.Ticket) []string {
	description := strings.ReplaceAll(ticket.Description, "\n", " ")
	if runes := []rune(description); len(runes) > 500 {
		description = string(runes[:500])
	}
	assigneeID := ""
	if ticket.AssigneeID != nil {
		assigneeID = strconv.FormatInt(*ticket.AssigneeID, 10)
	}
	return []string{
		strconv.FormatInt(ticket.ID, 10),
		string(ticket.Kind),
		string(ticket.Status),
		string(ticket.Priority),
		strconv.FormatInt(ticket.AuthorID, 10),
		ticket.AuthorName,
		assigneeID,
		ticket.AssigneeName,
		ticket.CreatedAt.Format(time.RFC3339),
		formatOptionalTime(ticket.StartedAt),
		formatOptionalTime(ticket.DoneAt),
		FormatDuration(ticket.StartedAt, ticket.DoneAt),
		ticket.Reason,
		description,
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// FormatDuration renders the span between two times as "1д 2ч 3м". A
// missing endpoint renders as the same placeholder the chat cards use.
func FormatDuration(start, end *time.Time) string {
	if start == nil || end == nil {
		return "—"
	}
	s, e := *start, *end
	if e.Before(s) {
		s, e = e, s
	}
	delta := e.Sub(s)

	days := int(delta.Hours()) / 24
	hours := int(delta.Hours()) % 24
	minutes := int(delta.Minutes()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dд", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dч", hours))
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%dм", minutes))
	}
	return strings.Join(parts, " ")
}
