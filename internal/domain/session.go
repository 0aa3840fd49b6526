package domain

import "time"

// SessionState discriminates the dialog session variants. An absent
// session record means the actor is idle.
type SessionState string

const (
	SessionCreating       SessionState = "creating"
	SessionAwaitingReason SessionState = "awaiting_reason"
)

// WizardStep enumerates the creation dialog steps.
type WizardStep string

const (
	StepChooseLocation     WizardStep = "choose_location"
	StepLocationOther      WizardStep = "location_other"
	StepChooseEquipment    WizardStep = "choose_equipment"
	StepEquipmentOther     WizardStep = "equipment_other"
	StepChoosePriority     WizardStep = "choose_priority"
	StepComposeDescription WizardStep = "compose_description"
)

// ReasonAction names the transition a captured reason feeds.
type ReasonAction string

const (
	ReasonDecline ReasonAction = "decline"
	ReasonCancel  ReasonAction = "cancel"
	ReasonReject  ReasonAction = "reject"
)

// Session is one actor's in-flight dialog state. Exactly one flow can be
// live per actor; arming a new one replaces the old.
type Session struct {
	ActorID   int64          `json:"actor_id"`
	ChatID    int64          `json:"chat_id"`
	State     SessionState   `json:"state"`
	Kind      TicketKind     `json:"kind,omitempty"`
	Step      WizardStep     `json:"step,omitempty"`
	Location  string         `json:"location,omitempty"`
	Equipment string         `json:"equipment,omitempty"`
	Priority  TicketPriority `json:"priority,omitempty"`
	TicketID  int64          `json:"ticket_id,omitempty"`
	Action    ReasonAction   `json:"action,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewCreatingSession starts a creation flow at its first step.
func NewCreatingSession(actorID, chatID int64, kind TicketKind) *Session {
	step := StepChooseLocation
	if kind == TicketKindPurchase {
		step = StepComposeDescription
	}
	return &Session{
		ActorID:  actorID,
		ChatID:   chatID,
		State:    SessionCreating,
		Kind:     kind,
		Step:     step,
		Priority: TicketPriorityNormal,
	}
}

// NewReasonSession arms a reason capture for a pending ticket action.
func NewReasonSession(actorID, chatID, ticketID int64, action ReasonAction) *Session {
	return &Session{
		ActorID:  actorID,
		ChatID:   chatID,
		State:    SessionAwaitingReason,
		TicketID: ticketID,
		Action:   action,
	}
}
