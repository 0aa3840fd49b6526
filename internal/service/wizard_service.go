package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/leaftogo/deskbot/internal/config"
	"github.com/leaftogo/deskbot/internal/domain"
	"github.com/leaftogo/deskbot/internal/events"
	"github.com/leaftogo/deskbot/internal/repository"
	"github.com/leaftogo/deskbot/internal/session"
	apperrors "github.com/leaftogo/deskbot/pkg/util"
)

// WizardButton names the inline keys a creation prompt offers besides
// the option picks.
type WizardButton string

const (
	WizardButtonPick   WizardButton = "pick"
	WizardButtonOther  WizardButton = "other"
	WizardButtonBack   WizardButton = "back"
	WizardButtonCancel WizardButton = "cancel"
)

// wizardPriorities is the pick order on the priority step.
var wizardPriorities = []domain.TicketPriority{
	domain.TicketPriorityLow,
	domain.TicketPriorityNormal,
	domain.TicketPriorityHigh,
}

// Prompt tells the transport what to ask next. Options are the pick
// values in button order; OfferOther adds the free-text escape hatch.
type Prompt struct {
	Step       domain.WizardStep
	Kind       domain.TicketKind
	Options    []string
	OfferOther bool
	CanBack    bool
}

// WizardResult is the outcome of feeding one update into the dialog.
// Exactly one of Prompt, Created, Resolved or Canceled is meaningful.
type WizardResult struct {
	Prompt   *Prompt
	Created  *domain.Ticket
	Resolved *domain.Ticket
	Action   domain.ReasonAction
	Canceled bool
}

// WizardService drives the stateful dialogs: the ticket creation wizard
// and the reason capture armed by decline, cancel and reject. Session
// storage is the single source of dialog truth; losing a session just
// returns the actor to idle.
type WizardService struct {
	sessions   session.Store
	tickets    repository.TicketRepository
	lifecycle  *LifecycleService
	catalog    config.CatalogConfig
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// WizardDependencies bundles dependencies for the wizard service.
type WizardDependencies struct {
	Sessions   session.Store
	TicketRepo repository.TicketRepository
	Lifecycle  *LifecycleService
	Catalog    config.CatalogConfig
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewWizardService constructs the service.
func NewWizardService(deps WizardDependencies) *WizardService {
	return &WizardService{
		sessions:   deps.Sessions,
		tickets:    deps.TicketRepo,
		lifecycle:  deps.Lifecycle,
		catalog:    deps.Catalog,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// StartCreation opens a fresh creation dialog, replacing whatever flow
// the actor had going.
func (s *WizardService) StartCreation(ctx context.Context, actor ActorRef, chatID int64, kind domain.TicketKind) (*WizardResult, error) {
	sess := domain.NewCreatingSession(actor.ID, chatID, kind)
	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	return &WizardResult{Prompt: s.promptFor(sess)}, nil
}

// HandleButton feeds an inline wizard key press into the dialog.
func (s *WizardService) HandleButton(ctx context.Context, actor ActorRef, button WizardButton, option int) (*WizardResult, error) {
	sess, err := s.sessions.Get(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.State != domain.SessionCreating {
		return nil, apperrors.NewSessionLost("the dialog this button belonged to is over")
	}

	switch button {
	case WizardButtonCancel:
		if err := s.sessions.Delete(ctx, actor.ID); err != nil {
			return nil, err
		}
		return &WizardResult{Canceled: true}, nil
	case WizardButtonBack:
		return s.stepBack(ctx, sess)
	case WizardButtonOther:
		switch sess.Step {
		case domain.StepChooseLocation:
			sess.Step = domain.StepLocationOther
		case domain.StepChooseEquipment:
			sess.Step = domain.StepEquipmentOther
		default:
			return nil, apperrors.NewSessionLost("the dialog has moved past this step")
		}
		if err := s.sessions.Put(ctx, sess); err != nil {
			return nil, err
		}
		return &WizardResult{Prompt: s.promptFor(sess)}, nil
	case WizardButtonPick:
		return s.pick(ctx, sess, option)
	default:
		return nil, apperrors.NewInvalidInput("unknown wizard key", map[string]any{"button": string(button)})
	}
}

// HandleText feeds a plain text message into the dialog. A nil result
// with a nil error means the actor has no dialog and the text is not
// the wizard's business.
func (s *WizardService) HandleText(ctx context.Context, actor ActorRef, text string) (*WizardResult, error) {
	sess, err := s.sessions.Get(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	if sess.State == domain.SessionAwaitingReason {
		return s.resolveReason(ctx, actor, sess, text)
	}

	text = strings.TrimSpace(text)
	switch sess.Step {
	case domain.StepChooseLocation, domain.StepLocationOther:
		if text == "" {
			return nil, apperrors.NewInvalidInput("location cannot be empty", map[string]any{"field": "location"})
		}
		sess.Location = text
		sess.Step = domain.StepChooseEquipment
	case domain.StepChooseEquipment, domain.StepEquipmentOther:
		if text == "" {
			return nil, apperrors.NewInvalidInput("equipment cannot be empty", map[string]any{"field": "equipment"})
		}
		sess.Equipment = text
		sess.Step = domain.StepChoosePriority
	case domain.StepChoosePriority:
		// Priority comes from the keys only.
		return nil, apperrors.NewInvalidInput("pick a priority with the buttons", map[string]any{"field": "priority"})
	case domain.StepComposeDescription:
		if text == "" {
			return nil, apperrors.NewInvalidInput("description cannot be empty", map[string]any{"field": "description"})
		}
		return s.createTicket(ctx, actor, sess, text, "")
	default:
		return nil, apperrors.NewSessionLost("the dialog is in an unknown step")
	}

	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	return &WizardResult{Prompt: s.promptFor(sess)}, nil
}

// HandlePhoto feeds a photo message into the dialog. Only the
// description step takes photos; the caption becomes the description.
func (s *WizardService) HandlePhoto(ctx context.Context, actor ActorRef, fileID, caption string) (*WizardResult, error) {
	sess, err := s.sessions.Get(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if sess.State == domain.SessionAwaitingReason {
		return nil, apperrors.NewInvalidInput("the reason must be text", map[string]any{"field": "reason"})
	}
	if sess.Step != domain.StepComposeDescription {
		return nil, apperrors.NewInvalidInput("finish the current step first", map[string]any{"field": "step"})
	}
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return nil, apperrors.NewInvalidInput("add a caption describing the problem", map[string]any{"field": "caption"})
	}
	return s.createTicket(ctx, actor, sess, caption, fileID)
}

// BeginReason authorizes the pending action and arms the reason capture.
// The returned ticket lets the transport word the prompt.
func (s *WizardService) BeginReason(ctx context.Context, actor ActorRef, chatID, ticketID int64, action domain.ReasonAction) (*domain.Ticket, error) {
	ticket, err := s.lifecycle.AuthorizeReason(ctx, actor, ticketID, action)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Put(ctx, domain.NewReasonSession(actor.ID, chatID, ticketID, action)); err != nil {
		return nil, err
	}
	return ticket, nil
}

// HasDialog reports whether the actor currently has any dialog going.
func (s *WizardService) HasDialog(ctx context.Context, actorID int64) bool {
	sess, err := s.sessions.Get(ctx, actorID)
	if err != nil {
		s.logger.Warn("session lookup failed", zap.Int64("actor_id", actorID), zap.Error(err))
		return false
	}
	return sess != nil
}

// Abandon drops whatever dialog the actor has. Commands like /start
// call it so leftover wizard state never swallows the next message.
func (s *WizardService) Abandon(ctx context.Context, actorID int64) {
	if err := s.sessions.Delete(ctx, actorID); err != nil {
		s.logger.Warn("session delete failed", zap.Int64("actor_id", actorID), zap.Error(err))
	}
}

// resolveReason applies the captured reason to the armed action. A blank
// reason keeps the capture armed; any attempt, successful or not,
// disarms it.
func (s *WizardService) resolveReason(ctx context.Context, actor ActorRef, sess *domain.Session, text string) (*WizardResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewInvalidInput("the reason cannot be empty", map[string]any{"field": "reason"})
	}
	if err := s.sessions.Delete(ctx, actor.ID); err != nil {
		return nil, err
	}

	var (
		ticket *domain.Ticket
		err    error
	)
	switch sess.Action {
	case domain.ReasonDecline:
		ticket, err = s.lifecycle.Decline(ctx, actor, sess.TicketID, text)
	case domain.ReasonCancel:
		ticket, err = s.lifecycle.Cancel(ctx, actor, sess.TicketID, text)
	case domain.ReasonReject:
		ticket, err = s.lifecycle.Reject(ctx, actor, sess.TicketID, text)
	default:
		return nil, apperrors.NewSessionLost("the pending action is unknown")
	}
	if err != nil {
		return nil, err
	}
	return &WizardResult{Resolved: ticket, Action: sess.Action}, nil
}

// pick applies an option key press on a choose step.
func (s *WizardService) pick(ctx context.Context, sess *domain.Session, option int) (*WizardResult, error) {
	switch sess.Step {
	case domain.StepChooseLocation:
		if option < 0 || option >= len(s.catalog.Locations) {
			return nil, apperrors.NewInvalidInput("unknown location option", map[string]any{"option": option})
		}
		sess.Location = s.catalog.Locations[option]
		sess.Step = domain.StepChooseEquipment
	case domain.StepChooseEquipment:
		if option < 0 || option >= len(s.catalog.Equipment) {
			return nil, apperrors.NewInvalidInput("unknown equipment option", map[string]any{"option": option})
		}
		sess.Equipment = s.catalog.Equipment[option]
		sess.Step = domain.StepChoosePriority
	case domain.StepChoosePriority:
		if option < 0 || option >= len(wizardPriorities) {
			return nil, apperrors.NewInvalidInput("unknown priority option", map[string]any{"option": option})
		}
		sess.Priority = wizardPriorities[option]
		sess.Step = domain.StepComposeDescription
	default:
		return nil, apperrors.NewSessionLost("the dialog has moved past this step")
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	return &WizardResult{Prompt: s.promptFor(sess)}, nil
}

// stepBack rewinds one step, dropping only the value the actor is about
// to re-choose.
func (s *WizardService) stepBack(ctx context.Context, sess *domain.Session) (*WizardResult, error) {
	switch sess.Step {
	case domain.StepLocationOther:
		sess.Step = domain.StepChooseLocation
	case domain.StepChooseEquipment:
		sess.Location = ""
		sess.Step = domain.StepChooseLocation
	case domain.StepEquipmentOther:
		sess.Step = domain.StepChooseEquipment
	case domain.StepChoosePriority:
		sess.Equipment = ""
		sess.Step = domain.StepChooseEquipment
	case domain.StepComposeDescription:
		if sess.Kind != domain.TicketKindRepair {
			return nil, apperrors.NewSessionLost("nothing to go back to")
		}
		sess.Priority = domain.TicketPriorityNormal
		sess.Step = domain.StepChoosePriority
	default:
		return nil, apperrors.NewSessionLost("nothing to go back to")
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	return &WizardResult{Prompt: s.promptFor(sess)}, nil
}

// createTicket persists the composed ticket, ends the dialog and
// announces the creation.
func (s *WizardService) createTicket(ctx context.Context, actor ActorRef, sess *domain.Session, description, photoFileID string) (*WizardResult, error) {
	ticket := &domain.Ticket{
		Kind:        sess.Kind,
		Status:      domain.TicketStatusNew,
		Priority:    sess.Priority,
		ChatID:      sess.ChatID,
		AuthorID:    actor.ID,
		AuthorName:  actor.Label(),
		Location:    sess.Location,
		Equipment:   sess.Equipment,
		Description: description,
		PhotoFileID: photoFileID,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityNormal
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	if err := s.sessions.Delete(ctx, actor.ID); err != nil {
		s.logger.Warn("dialog cleanup failed after ticket creation",
			zap.Int64("actor_id", actor.ID), zap.Error(err))
	}
	s.logger.Info("ticket created",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("kind", string(ticket.Kind)),
		zap.Int64("author_id", actor.ID))

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: actor.ID},
		Ticket:   ticket,
		Payload: events.TicketCreatedPayload{
			Kind:        ticket.Kind,
			Priority:    ticket.Priority,
			Location:    ticket.Location,
			Equipment:   ticket.Equipment,
			Description: ticket.Description,
		},
	})
	return &WizardResult{Created: ticket}, nil
}

// promptFor renders the session's current step as a transport-neutral
// prompt.
func (s *WizardService) promptFor(sess *domain.Session) *Prompt {
	prompt := &Prompt{Step: sess.Step, Kind: sess.Kind}
	switch sess.Step {
	case domain.StepChooseLocation:
		prompt.Options = s.catalog.Locations
		prompt.OfferOther = true
	case domain.StepLocationOther:
		prompt.CanBack = true
	case domain.StepChooseEquipment:
		prompt.Options = s.catalog.Equipment
		prompt.OfferOther = true
		prompt.CanBack = true
	case domain.StepEquipmentOther:
		prompt.CanBack = true
	case domain.StepChoosePriority:
		for _, priority := range wizardPriorities {
			prompt.Options = append(prompt.Options, string(priority))
		}
		prompt.CanBack = true
	case domain.StepComposeDescription:
		prompt.CanBack = sess.Kind == domain.TicketKindRepair
	}
	return prompt
}
