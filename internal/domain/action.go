package domain

// TicketAction enumerates the operations a ticket card button can
// trigger. Transports encode these into callback payloads; services and
// the router only ever see the typed value.
type TicketAction string

const (
	ActionClaim      TicketAction = "claim"
	ActionAssignSelf TicketAction = "assign_self"
	ActionAssignMenu TicketAction = "assign_menu"
	ActionAssignTo   TicketAction = "assign_to"
	ActionEscalate   TicketAction = "escalate"
	ActionComplete   TicketAction = "complete"
	ActionDecline    TicketAction = "decline"
	ActionCancel     TicketAction = "cancel"
	ActionApprove    TicketAction = "approve"
	ActionReject     TicketAction = "reject"
)
