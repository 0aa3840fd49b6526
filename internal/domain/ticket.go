package domain

import "time"

// TicketKind separates the two request workflows.
type TicketKind string

const (
	TicketKindRepair   TicketKind = "repair"
	TicketKindPurchase TicketKind = "purchase"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew      TicketStatus = "new"
	TicketStatusInWork   TicketStatus = "in_work"
	TicketStatusDone     TicketStatus = "done"
	TicketStatusApproved TicketStatus = "approved"
	TicketStatusRejected TicketStatus = "rejected"
	TicketStatusCanceled TicketStatus = "canceled"
)

// IsTerminal reports whether no transition may leave the status.
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketStatusDone, TicketStatusApproved, TicketStatusRejected, TicketStatusCanceled:
		return true
	}
	return false
}

// TicketPriority enumerates urgency, ordered low to high.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityNormal TicketPriority = "normal"
	TicketPriorityHigh   TicketPriority = "high"
)

// Next returns the priority one step up, clamped at high.
func (p TicketPriority) Next() TicketPriority {
	switch p {
	case TicketPriorityLow:
		return TicketPriorityNormal
	case TicketPriorityNormal:
		return TicketPriorityHigh
	default:
		return TicketPriorityHigh
	}
}

// Ticket is the aggregate for service-desk requests.
type Ticket struct {
	ID           int64
	Kind         TicketKind
	Status       TicketStatus
	Priority     TicketPriority
	ChatID       int64
	AuthorID     int64
	AuthorName   string
	Location     string
	Equipment    string
	Description  string
	PhotoFileID  string
	AssigneeID   *int64
	AssigneeName string
	Reason       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	DoneAt       *time.Time
}

// AssignedTo reports whether the ticket is assigned to the given actor.
func (t *Ticket) AssignedTo(actorID int64) bool {
	return t.AssigneeID != nil && *t.AssigneeID == actorID
}

// Duration returns time spent between start and completion, zero when
// either timestamp is missing.
func (t *Ticket) Duration() time.Duration {
	if t.StartedAt == nil || t.DoneAt == nil {
		return 0
	}
	d := t.DoneAt.Sub(*t.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}
