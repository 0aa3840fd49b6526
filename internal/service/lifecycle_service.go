package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leaftogo/deskbot/internal/domain"
	"github.com/leaftogo/deskbot/internal/events"
	"github.com/leaftogo/deskbot/internal/repository"
	apperrors "github.com/leaftogo/deskbot/pkg/util"
)

// ActorRef identifies the acting user for lifecycle operations. Name is
// a display label only; authorization goes by ID.
type ActorRef struct {
	ID   int64
	Name string
}

// Label returns the display name, falling back to the numeric ID.
func (a ActorRef) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return strconv.FormatInt(a.ID, 10)
}

// LifecycleService owns every ticket state transition. Each operation
// performs exactly one conditional update against the repository, so two
// racing actors can never both win the same transition.
type LifecycleService struct {
	tickets    repository.TicketRepository
	roles      *RoleService
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// LifecycleDependencies bundles dependencies for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo repository.TicketRepository
	Roles      *RoleService
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	return &LifecycleService{
		tickets:    deps.TicketRepo,
		roles:      deps.Roles,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// allowedTransitions is the full lifecycle graph per ticket kind. A
// transition absent from this table is refused regardless of the caller.
var allowedTransitions = map[domain.TicketKind]map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketKindRepair: {
		domain.TicketStatusNew:    {domain.TicketStatusInWork, domain.TicketStatusCanceled},
		domain.TicketStatusInWork: {domain.TicketStatusDone, domain.TicketStatusRejected, domain.TicketStatusCanceled},
	},
	domain.TicketKindPurchase: {
		domain.TicketStatusNew: {domain.TicketStatusApproved, domain.TicketStatusRejected, domain.TicketStatusCanceled},
	},
}

func isValidTransition(kind domain.TicketKind, current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[kind][current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Get loads a ticket for display.
func (s *LifecycleService) Get(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	return s.load(ctx, ticketID)
}

// Claim moves a new repair ticket into work, assigning it to the caller
// in the same write. Exactly one of several concurrent claimants wins.
func (s *LifecycleService) Claim(ctx context.Context, actor ActorRef, ticketID int64) (*domain.Ticket, error) {
	capability := s.roles.Capability(ctx, actor.ID)
	if !capability.AtLeast(domain.CapabilityTechnician) {
		return nil, apperrors.NewForbidden("only technicians and admins can take tickets")
	}

	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Kind != domain.TicketKindRepair {
		return nil, apperrors.NewStaleState("not a repair ticket", map[string]any{"kind": ticket.Kind})
	}
	if ticket.Status != domain.TicketStatusNew {
		return nil, apperrors.NewStaleState("ticket is no longer new", map[string]any{"status": ticket.Status})
	}
	if ticket.AssigneeID != nil && *ticket.AssigneeID != actor.ID && !capability.AtLeast(domain.CapabilityAdmin) {
		return nil, apperrors.NewAlreadyTaken("ticket is assigned to someone else",
			map[string]any{"assignee_id": *ticket.AssigneeID})
	}
	// Tickets opened by an admin are dispatched by admins, never picked
	// up ad hoc by technicians.
	if ticket.AssigneeID == nil && !capability.AtLeast(domain.CapabilityAdmin) &&
		s.roles.Capability(ctx, ticket.AuthorID).AtLeast(domain.CapabilityAdmin) {
		return nil, apperrors.NewForbidden("this ticket is dispatched by admins")
	}

	now := time.Now().UTC()
	newStatus := domain.TicketStatusInWork
	name := actor.Label()
	update := repository.TicketUpdate{
		Status:       &newStatus,
		AssigneeID:   &actor.ID,
		AssigneeName: &name,
	}
	if ticket.StartedAt == nil {
		update.StartedAt = &now
	}

	ok, err := s.tickets.ConditionalUpdate(ctx, ticket.ID, repository.UpdateGuard{
		Status:        statusPtr(domain.TicketStatusNew),
		MatchAssignee: true,
		Assignee:      ticket.AssigneeID,
	}, update)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.classifyMiss(ctx, ticket.ID, actor.ID)
	}

	ticket.Status = newStatus
	ticket.AssigneeID = &actor.ID
	ticket.AssigneeName = name
	if ticket.StartedAt == nil {
		ticket.StartedAt = &now
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClaimed,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: actor.ID, Capability: capability},
		Ticket:   ticket,
		Payload:  events.TicketClaimedPayload{AssigneeID: actor.ID},
	})
	return ticket, nil
}

// Assign dispatches a repair ticket to a technician or admin, moving it
// into work in the same write. Admins may also reassign a ticket that is
// already in work.
func (s *LifecycleService) Assign(ctx context.Context, admin ActorRef, ticketID int64, assignee ActorRef) (*domain.Ticket, error) {
	capability := s.roles.Capability(ctx, admin.ID)
	if !capability.AtLeast(domain.CapabilityAdmin) {
		return nil, apperrors.NewForbidden("only admins can assign tickets")
	}
	if !s.roles.Capability(ctx, assignee.ID).AtLeast(domain.CapabilityTechnician) {
		return nil, apperrors.NewInvalidInput("assignee is not a technician",
			map[string]any{"assignee_id": assignee.ID})
	}

	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Kind != domain.TicketKindRepair {
		return nil, apperrors.NewStaleState("not a repair ticket", map[string]any{"kind": ticket.Kind})
	}
	if ticket.Status != domain.TicketStatusNew && ticket.Status != domain.TicketStatusInWork {
		return nil, apperrors.NewStaleState("ticket can no longer be assigned",
			map[string]any{"status": ticket.Status})
	}

	newStatus := domain.TicketStatusInWork
	name := assignee.Label()
	ok, err := s.tickets.ConditionalUpdate(ctx, ticket.ID, repository.UpdateGuard{
		Status:        &ticket.Status,
		MatchAssignee: true,
		Assignee:      ticket.AssigneeID,
	}, repository.TicketUpdate{
		Status:       &newStatus,
		AssigneeID:   &assignee.ID,
		AssigneeName: &name,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.classifyMiss(ctx, ticket.ID, admin.ID)
	}

	ticket.Status = newStatus
	ticket.AssigneeID = &assignee.ID
	ticket.AssigneeName = name
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: admin.ID, Capability: capability},
		Ticket:   ticket,
		Payload:  events.TicketAssignedPayload{AssigneeID: assignee.ID, AssignedBy: admin.ID},
	})
	return ticket, nil
}

// Escalate bumps a repair ticket's priority one step. A ticket already
// at the top priority is returned unchanged.
func (s *LifecycleService) Escalate(ctx context.Context, admin ActorRef, ticketID int64) (*domain.Ticket, error) {
	capability := s.roles.Capability(ctx, admin.ID)
	if !capability.AtLeast(domain.CapabilityAdmin) {
		return nil, apperrors.NewForbidden("only admins can escalate priority")
	}

	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Kind != domain.TicketKindRepair {
		return nil, apperrors.NewStaleState("not a repair ticket", map[string]any{"kind": ticket.Kind})
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewStaleState("ticket is closed", map[string]any{"status": ticket.Status})
	}
	if ticket.Priority == domain.TicketPriorityHigh {
		return ticket, nil
	}

	oldPriority := ticket.Priority
	next := ticket.Priority.Next()
	ok, err := s.tickets.ConditionalUpdate(ctx, ticket.ID, repository.UpdateGuard{
		Status: &ticket.Status,
	}, repository.TicketUpdate{
		Priority: &next,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.classifyMiss(ctx, ticket.ID, admin.ID)
	}

	ticket.Priority = next
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketPriorityEscalated,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: admin.ID, Capability: capability},
		Ticket:   ticket,
		Payload:  events.TicketPriorityEscalatedPayload{OldPriority: oldPriority, NewPriority: next},
	})
	return ticket, nil
}

// Complete closes a repair ticket as done. Only the assignee or an admin
// may complete. A ticket that never went through a claim gets a start
// time equal to its completion time, so duration stays computable.
func (s *LifecycleService) Complete(ctx context.Context, actor ActorRef, ticketID int64) (*domain.Ticket, error) {
	ticket, capability, err := s.loadForAssigneeAction(ctx, actor, ticketID, "complete")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	newStatus := domain.TicketStatusDone
	update := repository.TicketUpdate{
		Status: &newStatus,
		DoneAt: &now,
	}
	if ticket.StartedAt == nil {
		update.StartedAt = &now
	}

	ok, err := s.tickets.ConditionalUpdate(ctx, ticket.ID, repository.UpdateGuard{
		Status:        statusPtr(domain.TicketStatusInWork),
		MatchAssignee: true,
		Assignee:      ticket.AssigneeID,
	}, update)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.classifyMiss(ctx, ticket.ID, actor.ID)
	}

	oldStatus := ticket.Status
	ticket.Status = newStatus
	ticket.DoneAt = &now
	if ticket.StartedAt == nil {
		ticket.StartedAt = &now
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: actor.ID, Capability: capability},
		Ticket:   ticket,
		Payload:  events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: newStatus},
	})
	return ticket, nil
}

// Decline lets the assignee (or an admin) hand a repair ticket back with
// a mandatory reason.
func (s *LifecycleService) Decline(ctx context.Context, actor ActorRef, ticketID int64, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewInvalidInput("a reason is required", map[string]any{"field": "reason"})
	}

	ticket, capability, err := s.loadForAssigneeAction(ctx, actor, ticketID, "decline")
	if err != nil {
		return nil, err
	}

	newStatus := domain.TicketStatusRejected
	ok, err := s.tickets.ConditionalUpdate(ctx, ticket.ID, repository.UpdateGuard{
		Status:        statusPtr(domain.TicketStatusInWork),
		MatchAssignee: true,
		Assignee:      ticket.AssigneeID,
	}, repository.TicketUpdate{
		Status: &newStatus,
		Reason: &reason,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.classifyMiss(ctx, ticket.ID, actor.ID)
	}

	oldStatus := ticket.Status
	ticket.Status = newStatus
	ticket.Reason = reason
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: actor.ID, Capability: capability},
		Ticket:   ticket,
		Payload:  events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: newStatus, Reason: reason},
	})
	return ticket, nil
}

// Cancel voids a ticket with a mandatory reason. Admin only. A canceled
// ticket holds no assignee.
func (s *LifecycleService) Cancel(ctx context.Context, admin ActorRef, ticketID int64, reason string) (*domain.Ticket, error) {
	return s.adminResolve(ctx, admin, ticketID, "", domain.TicketStatusCanceled, reason, true)
}

// Approve accepts a purchase ticket. Admin only.
func (s *LifecycleService) Approve(ctx context.Context, admin ActorRef, ticketID int64) (*domain.Ticket, error) {
	return s.adminResolve(ctx, admin, ticketID, domain.TicketKindPurchase, domain.TicketStatusApproved, "", false)
}

// Reject declines a purchase ticket with a mandatory reason. Admin only.
// Repair tickets are handed back through Decline instead.
func (s *LifecycleService) Reject(ctx context.Context, admin ActorRef, ticketID int64, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewInvalidInput("a reason is required", map[string]any{"field": "reason"})
	}
	return s.adminResolve(ctx, admin, ticketID, domain.TicketKindPurchase, domain.TicketStatusRejected, reason, false)
}

// AuthorizeReason checks that the actor may run the reason-requiring
// action on the ticket in its current state, without writing anything.
// The dialog layer calls this before collecting the reason text.
func (s *LifecycleService) AuthorizeReason(ctx context.Context, actor ActorRef, ticketID int64, action domain.ReasonAction) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	capability := s.roles.Capability(ctx, actor.ID)

	switch action {
	case domain.ReasonDecline:
		if ticket.Kind != domain.TicketKindRepair {
			return nil, apperrors.NewStaleState("not a repair ticket", map[string]any{"kind": ticket.Kind})
		}
		if !capability.AtLeast(domain.CapabilityAdmin) && !ticket.AssignedTo(actor.ID) {
			return nil, apperrors.NewForbidden("only the assignee or an admin can decline")
		}
		if ticket.Status != domain.TicketStatusInWork {
			return nil, apperrors.NewStaleState("ticket is not in work", map[string]any{"status": ticket.Status})
		}
	case domain.ReasonCancel:
		if !capability.AtLeast(domain.CapabilityAdmin) {
			return nil, apperrors.NewForbidden("only admins can cancel tickets")
		}
		if !isValidTransition(ticket.Kind, ticket.Status, domain.TicketStatusCanceled) {
			return nil, apperrors.NewStaleState("ticket can no longer be canceled",
				map[string]any{"status": ticket.Status})
		}
	case domain.ReasonReject:
		if !capability.AtLeast(domain.CapabilityAdmin) {
			return nil, apperrors.NewForbidden("only admins can reject tickets")
		}
		if ticket.Kind != domain.TicketKindPurchase {
			return nil, apperrors.NewStaleState("not a purchase ticket", map[string]any{"kind": ticket.Kind})
		}
		if ticket.Status != domain.TicketStatusNew {
			return nil, apperrors.NewStaleState("ticket already decided", map[string]any{"status": ticket.Status})
		}
	default:
		return nil, apperrors.NewInvalidInput("unknown action", map[string]any{"action": string(action)})
	}
	return ticket, nil
}

// AvailableActions returns the card actions the viewer is entitled to in
// the ticket's current state. Rendering layers never compute permissions.
func (s *LifecycleService) AvailableActions(ctx context.Context, ticket *domain.Ticket, viewerID int64) []domain.TicketAction {
	capability := s.roles.Capability(ctx, viewerID)
	isAdmin := capability.AtLeast(domain.CapabilityAdmin)

	var actions []domain.TicketAction
	switch ticket.Kind {
	case domain.TicketKindRepair:
		if ticket.Status.IsTerminal() {
			return nil
		}
		if isAdmin {
			actions = append(actions, domain.ActionEscalate, domain.ActionAssignSelf, domain.ActionAssignMenu)
		}
		if ticket.Status == domain.TicketStatusNew && capability.AtLeast(domain.CapabilityTechnician) {
			claimable := isAdmin ||
				(ticket.AssigneeID == nil && !s.roles.Capability(ctx, ticket.AuthorID).AtLeast(domain.CapabilityAdmin)) ||
				ticket.AssignedTo(viewerID)
			if claimable {
				actions = append(actions, domain.ActionClaim)
			}
		}
		if ticket.Status == domain.TicketStatusInWork && (isAdmin || ticket.AssignedTo(viewerID)) {
			actions = append(actions, domain.ActionComplete, domain.ActionDecline)
		}
		if isAdmin {
			actions = append(actions, domain.ActionCancel)
		}
	case domain.TicketKindPurchase:
		if ticket.Status != domain.TicketStatusNew || !isAdmin {
			return nil
		}
		actions = append(actions, domain.ActionApprove, domain.ActionReject, domain.ActionCancel)
	}
	return actions
}

// adminResolve performs the admin-only terminal transitions that share
// the same structure: cancel, approve and purchase reject. An empty
// requireKind accepts either kind.
func (s *LifecycleService) adminResolve(ctx context.Context, admin ActorRef, ticketID int64, requireKind domain.TicketKind, target domain.TicketStatus, reason string, clearAssignee bool) (*domain.Ticket, error) {
	capability := s.roles.Capability(ctx, admin.ID)
	if !capability.AtLeast(domain.CapabilityAdmin) {
		return nil, apperrors.NewForbidden("admin capability required")
	}
	if target == domain.TicketStatusCanceled {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return nil, apperrors.NewInvalidInput("a reason is required", map[string]any{"field": "reason"})
		}
	}

	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if requireKind != "" && ticket.Kind != requireKind {
		return nil, apperrors.NewStaleState("wrong ticket kind for this action",
			map[string]any{"kind": ticket.Kind})
	}
	if !isValidTransition(ticket.Kind, ticket.Status, target) {
		return nil, apperrors.NewStaleState("transition not allowed",
			map[string]any{"status": ticket.Status, "target": target})
	}

	update := repository.TicketUpdate{Status: &target, ClearAssignee: clearAssignee}
	if reason != "" {
		update.Reason = &reason
	}
	ok, err := s.tickets.ConditionalUpdate(ctx, ticket.ID, repository.UpdateGuard{
		Status:        &ticket.Status,
		MatchAssignee: true,
		Assignee:      ticket.AssigneeID,
	}, update)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.classifyMiss(ctx, ticket.ID, admin.ID)
	}

	oldStatus := ticket.Status
	ticket.Status = target
	ticket.Reason = reason
	if clearAssignee {
		ticket.AssigneeID = nil
		ticket.AssigneeName = ""
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: admin.ID, Capability: capability},
		Ticket:   ticket,
		Payload:  events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: target, Reason: reason},
	})
	return ticket, nil
}

// loadForAssigneeAction shares the preamble of complete and decline:
// repair only, in work, caller is assignee or admin.
func (s *LifecycleService) loadForAssigneeAction(ctx context.Context, actor ActorRef, ticketID int64, action string) (*domain.Ticket, domain.Capability, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, domain.CapabilityUser, err
	}
	if ticket.Kind != domain.TicketKindRepair {
		return nil, domain.CapabilityUser, apperrors.NewStaleState("not a repair ticket",
			map[string]any{"kind": ticket.Kind})
	}
	capability := s.roles.Capability(ctx, actor.ID)
	if !capability.AtLeast(domain.CapabilityAdmin) && !ticket.AssignedTo(actor.ID) {
		return nil, capability, apperrors.NewForbidden("only the assignee or an admin can " + action)
	}
	if ticket.Status != domain.TicketStatusInWork {
		return nil, capability, apperrors.NewStaleState("ticket is not in work",
			map[string]any{"status": ticket.Status})
	}
	return ticket, capability, nil
}

func (s *LifecycleService) load(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	return ticket, nil
}

// classifyMiss decides what to tell an actor whose conditional update
// lost. Assigned to somebody else means the ticket was taken; any other
// mismatch means the state moved underneath them.
func (s *LifecycleService) classifyMiss(ctx context.Context, ticketID, actorID int64) error {
	current, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if current == nil {
		return apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	if current.AssigneeID != nil && *current.AssigneeID != actorID {
		return apperrors.NewAlreadyTaken("ticket was taken by someone else",
			map[string]any{"assignee_id": *current.AssigneeID})
	}
	return apperrors.NewStaleState("ticket state changed, refresh the card",
		map[string]any{"status": current.Status})
}

func (s *LifecycleService) publishEvent(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, event)
}

// publishEvent fills the event envelope and hands it to the dispatcher.
func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	dispatcher.Publish(ctx, event)
}

func statusPtr(status domain.TicketStatus) *domain.TicketStatus {
	return &status
}
