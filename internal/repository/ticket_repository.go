package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leaftogo/deskbot/internal/domain"
)

// DefaultPageSize bounds list queries when the caller does not.
const DefaultPageSize = 20

// TicketFilter captures listing and search parameters. Results come
// newest-first by id; OrderByDone switches to completion time, for
// completion reports.
type TicketFilter struct {
	Kind           *domain.TicketKind
	Status         *domain.TicketStatus
	AuthorID       *int64
	AssigneeID     *int64
	UnassignedOnly bool
	CreatedFrom    *time.Time
	DoneFrom       *time.Time
	Search         string
	OrderByDone    bool
	Limit          int
	Offset         int
}

// UpdateGuard is the compare half of a conditional update. A nil Status
// matches any status. Assignee is only checked when MatchAssignee is
// set; a nil expected assignee then means "must be unassigned".
type UpdateGuard struct {
	Status        *domain.TicketStatus
	MatchAssignee bool
	Assignee      *int64
}

// TicketUpdate is the swap half of a conditional update. Nil fields are
// left untouched; ClearAssignee wins over AssigneeID.
type TicketUpdate struct {
	Status        *domain.TicketStatus
	Priority      *domain.TicketPriority
	AssigneeID    *int64
	AssigneeName  *string
	ClearAssignee bool
	Reason        *string
	StartedAt     *time.Time
	DoneAt        *time.Time
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// GetByID returns (nil, nil) when the ticket does not exist.
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	Find(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Count(ctx context.Context, filter TicketFilter) (int, error)
	// ConditionalUpdate applies the update only while the guard holds,
	// atomically. It reports false, without error, when the guard missed.
	ConditionalUpdate(ctx context.Context, id int64, guard UpdateGuard, update TicketUpdate) (bool, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (kind, status, priority, chat_id, author_id, author_name, location, equipment, description, photo_file_id, assignee_id, assignee_name, reason)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Kind,
		ticket.Status,
		ticket.Priority,
		ticket.ChatID,
		ticket.AuthorID,
		ticket.AuthorName,
		ticket.Location,
		ticket.Equipment,
		ticket.Description,
		ticket.PhotoFileID,
		ticket.AssigneeID,
		ticket.AssigneeName,
		ticket.Reason,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	const query = `
        SELECT id, kind, status, priority, chat_id, author_id, author_name, location, equipment,
               description, photo_file_id, assignee_id, assignee_name, reason,
               created_at, updated_at, started_at, done_at
        FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.Kind,
		&ticket.Status,
		&ticket.Priority,
		&ticket.ChatID,
		&ticket.AuthorID,
		&ticket.AuthorName,
		&ticket.Location,
		&ticket.Equipment,
		&ticket.Description,
		&ticket.PhotoFileID,
		&ticket.AssigneeID,
		&ticket.AssigneeName,
		&ticket.Reason,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.StartedAt,
		&ticket.DoneAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) Find(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT id, kind, status, priority, chat_id, author_id, author_name, location, equipment,
                    description, photo_file_id, assignee_id, assignee_name, reason,
                    created_at, updated_at, started_at, done_at
             FROM tickets`
	clauses, args := buildTicketClauses(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	order := "id DESC"
	if filter.OrderByDone {
		order = "done_at DESC NULLS LAST"
	}
	query := fmt.Sprintf(`%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), order, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter) (int, error) {
	clauses, args := buildTicketClauses(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tickets WHERE %s`, strings.Join(clauses, " AND "))

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) ConditionalUpdate(ctx context.Context, id int64, guard UpdateGuard, update TicketUpdate) (bool, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{}

	if update.Status != nil {
		args = append(args, *update.Status)
		sets = append(sets, fmt.Sprintf("status=$%d", len(args)))
	}
	if update.Priority != nil {
		args = append(args, *update.Priority)
		sets = append(sets, fmt.Sprintf("priority=$%d", len(args)))
	}
	if update.ClearAssignee {
		sets = append(sets, "assignee_id=NULL", "assignee_name=''")
	} else if update.AssigneeID != nil {
		args = append(args, *update.AssigneeID)
		sets = append(sets, fmt.Sprintf("assignee_id=$%d", len(args)))
		if update.AssigneeName != nil {
			args = append(args, *update.AssigneeName)
			sets = append(sets, fmt.Sprintf("assignee_name=$%d", len(args)))
		}
	}
	if update.Reason != nil {
		args = append(args, *update.Reason)
		sets = append(sets, fmt.Sprintf("reason=$%d", len(args)))
	}
	if update.StartedAt != nil {
		args = append(args, *update.StartedAt)
		sets = append(sets, fmt.Sprintf("started_at=$%d", len(args)))
	}
	if update.DoneAt != nil {
		args = append(args, *update.DoneAt)
		sets = append(sets, fmt.Sprintf("done_at=$%d", len(args)))
	}

	args = append(args, id)
	clauses := []string{fmt.Sprintf("id=$%d", len(args))}
	if guard.Status != nil {
		args = append(args, *guard.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if guard.MatchAssignee {
		args = append(args, guard.Assignee)
		clauses = append(clauses, fmt.Sprintf("assignee_id IS NOT DISTINCT FROM $%d", len(args)))
	}

	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE %s`,
		strings.Join(sets, ", "), strings.Join(clauses, " AND "))

	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func buildTicketClauses(filter TicketFilter) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		clauses = append(clauses, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.AuthorID != nil {
		args = append(args, *filter.AuthorID)
		clauses = append(clauses, fmt.Sprintf("author_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.UnassignedOnly {
		clauses = append(clauses, "assignee_id IS NULL")
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.DoneFrom != nil {
		args = append(args, *filter.DoneFrom)
		clauses = append(clauses, fmt.Sprintf("done_at >= $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		if id, ok := parseTicketRef(search); ok {
			args = append(args, id)
			clauses = append(clauses, fmt.Sprintf("id=$%d", len(args)))
		} else {
			args = append(args, "%"+strings.ToLower(search)+"%")
			placeholder := fmt.Sprintf("$%d", len(args))
			clauses = append(clauses, fmt.Sprintf(
				"(LOWER(description) LIKE %s OR LOWER(location) LIKE %s OR LOWER(equipment) LIKE %s)",
				placeholder, placeholder, placeholder))
		}
	}
	return clauses, args
}

// parseTicketRef recognizes the "#42" exact-id search form.
func parseTicketRef(search string) (int64, bool) {
	if !strings.HasPrefix(search, "#") {
		return 0, false
	}
	id, err := strconv.ParseInt(search[1:], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Kind,
			&ticket.Status,
			&ticket.Priority,
			&ticket.ChatID,
			&ticket.AuthorID,
			&ticket.AuthorName,
			&ticket.Location,
			&ticket.Equipment,
			&ticket.Description,
			&ticket.PhotoFileID,
			&ticket.AssigneeID,
			&ticket.AssigneeName,
			&ticket.Reason,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.StartedAt,
			&ticket.DoneAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
