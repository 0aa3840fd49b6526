package events

import (
	"time"

	"github.com/leaftogo/deskbot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated           EventType = "ticket_created"
	EventTicketClaimed           EventType = "ticket_claimed"
	EventTicketAssigned          EventType = "ticket_assigned"
	EventTicketStatusChanged     EventType = "ticket_status_changed"
	EventTicketPriorityEscalated EventType = "ticket_priority_escalated"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID         int64             `json:"id"`
	Capability domain.Capability `json:"capability"`
}

// Event represents a domain event emitted by services. Ticket carries the
// post-transition state so subscribers never re-read storage.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	TicketID  int64          `json:"ticket_id"`
	Actor     Actor          `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Ticket    *domain.Ticket `json:"-"`
	Payload   interface{}    `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Kind        domain.TicketKind     `json:"kind"`
	Priority    domain.TicketPriority `json:"priority"`
	Location    string                `json:"location,omitempty"`
	Equipment   string                `json:"equipment,omitempty"`
	Description string                `json:"description"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	AssigneeID int64 `json:"assignee_id"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID int64 `json:"assignee_id"`
	AssignedBy int64 `json:"assigned_by"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Reason    string              `json:"reason,omitempty"`
}

// TicketPriorityEscalatedPayload payload.
type TicketPriorityEscalatedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}
