package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/leaftogo/deskbot/internal/domain"
	"github.com/leaftogo/deskbot/internal/service"
	apperrors "github.com/leaftogo/deskbot/pkg/util"
)

// adminGatedCallbacks lists the keys whose rights failure rewrites the
// card instead of toasting. Keys every viewer may press keep the card
// intact for whoever is still allowed to use it.
var adminGatedCallbacks = map[string]bool{
	CallbackPriority:   true,
	CallbackAssignSelf: true,
	CallbackAssignMenu: true,
	CallbackAssignTo:   true,
	CallbackAssignBack: true,
	CallbackCancel:     true,
	CallbackApprove:    true,
	CallbackReject:     true,
}

func (r *Router) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil {
		return
	}
	actor := actorFrom(query.From)
	r.roles.Remember(ctx, actor.ID, query.From.UserName)

	cb, err := DecodeCallback(query.Data)
	if err != nil {
		r.answer(query.ID, ErrorText(err))
		return
	}
	if cb.Action == CallbackWizard {
		r.wizardCallback(ctx, actor, query, cb)
		return
	}
	r.ticketCallback(ctx, actor, query, cb)
}

// wizardCallback feeds an inline key press into the creation dialog and
// rewrites the prompt message with whatever comes next.
func (r *Router) wizardCallback(ctx context.Context, actor service.ActorRef, query *tgbotapi.CallbackQuery, cb *Callback) {
	res, err := r.wizard.HandleButton(ctx, actor, cb.Wizard, cb.Option)
	r.metrics.RecordAction("wiz:"+string(cb.Wizard), outcome(err))
	if err != nil {
		// A lost session leaves a stale prompt behind; rewrite it so
		// its dead keys stop inviting presses.
		if apperrors.ToDomainError(err).Code == apperrors.CodeSessionLost && query.Message != nil {
			r.editCard(query, ErrorText(err))
			r.answer(query.ID, "")
			return
		}
		r.answer(query.ID, ErrorText(err))
		return
	}
	if query.Message == nil {
		r.answer(query.ID, "")
		return
	}

	switch {
	case res.Canceled:
		r.editCard(query, MsgWizardCanceled)
	case res.Created != nil:
		r.editCard(query, CreatedAck(res.Created))
	case res.Prompt != nil:
		kb := WizardKeyboard(res.Prompt)
		if err := r.client.EditTextWithKeyboard(query.Message.Chat.ID, query.Message.MessageID, WizardPromptText(res.Prompt), *kb); err != nil {
			r.logger.Warn("prompt edit failed", zap.Error(err))
		}
	}
	r.answer(query.ID, "")
}

// ticketCallback runs a lifecycle key press. Successful state changes
// append their outcome to the card, which also retires its keyboard.
func (r *Router) ticketCallback(ctx context.Context, actor service.ActorRef, query *tgbotapi.CallbackQuery, cb *Callback) {
	var err error
	toast := ""

	switch cb.Action {
	case CallbackToWork:
		var t *domain.Ticket
		if t, err = r.lifecycle.Claim(ctx, actor, cb.TicketID); err == nil {
			r.appendToCard(query, "\n\nСтатус: "+StatusLabel(t.Kind, t.Status))
		}
	case CallbackDone:
		var t *domain.Ticket
		if t, err = r.lifecycle.Complete(ctx, actor, cb.TicketID); err == nil {
			r.appendToCard(query, "\n\nСтатус: "+StatusLabel(t.Kind, t.Status))
		}
	case CallbackPriority:
		var t *domain.Ticket
		if t, err = r.lifecycle.Escalate(ctx, actor, cb.TicketID); err == nil {
			r.appendToCard(query, "\n\nПриоритет: "+string(t.Priority))
		}
	case CallbackAssignSelf:
		var t *domain.Ticket
		if t, err = r.lifecycle.Assign(ctx, actor, cb.TicketID, actor); err == nil {
			r.appendToCard(query, "\n\nНазначено: "+t.AssigneeName)
		}
	case CallbackAssignTo:
		target := service.ActorRef{ID: cb.Assignee, Name: r.roles.DisplayName(ctx, cb.Assignee)}
		var t *domain.Ticket
		if t, err = r.lifecycle.Assign(ctx, actor, cb.TicketID, target); err == nil {
			r.appendToCard(query, "\n\nНазначено: "+t.AssigneeName)
		}
	case CallbackAssignMenu:
		toast, err = r.openAssignMenu(ctx, actor, query, cb.TicketID)
	case CallbackAssignBack:
		err = r.restoreActionKeyboard(ctx, actor, query, cb.TicketID)
	case CallbackCancel:
		if _, err = r.wizard.BeginReason(ctx, actor, chatOf(query), cb.TicketID, domain.ReasonCancel); err == nil {
			r.appendToCard(query, "\n\n"+MsgAskCancelReason)
		}
	case CallbackDecline:
		if _, err = r.wizard.BeginReason(ctx, actor, chatOf(query), cb.TicketID, domain.ReasonDecline); err == nil {
			r.appendToCard(query, "\n\n"+MsgAskReason)
		}
	case CallbackApprove:
		var t *domain.Ticket
		if t, err = r.lifecycle.Approve(ctx, actor, cb.TicketID); err == nil {
			r.appendToCard(query, "\n\nСтатус: "+StatusLabel(t.Kind, t.Status))
		}
	case CallbackReject:
		if _, err = r.wizard.BeginReason(ctx, actor, chatOf(query), cb.TicketID, domain.ReasonReject); err == nil {
			r.appendToCard(query, "\n\n"+MsgAskReason)
		}
	}

	r.metrics.RecordAction(cb.Action, outcome(err))
	if err != nil {
		r.callbackError(query, cb.Action, err)
		return
	}
	r.answer(query.ID, toast)
}

// openAssignMenu swaps the card keyboard for the technician list.
func (r *Router) openAssignMenu(ctx context.Context, actor service.ActorRef, query *tgbotapi.CallbackQuery, ticketID int64) (string, error) {
	if !r.roles.IsAdmin(ctx, actor.ID) {
		return "", apperrors.NewForbidden("only admins can assign tickets")
	}
	techs := r.roles.Technicians(ctx)
	targets := make([]AssignTarget, 0, len(techs))
	for _, id := range techs {
		targets = append(targets, AssignTarget{ID: id, Label: r.roles.DisplayName(ctx, id)})
	}
	if query.Message == nil {
		return "", nil
	}
	if err := r.client.EditKeyboard(query.Message.Chat.ID, query.Message.MessageID, AssignMenuKeyboard(ticketID, targets)); err != nil {
		r.logger.Warn("assign menu edit failed", zap.Error(err))
	}
	return MsgPickAssignee, nil
}

// restoreActionKeyboard puts the action keys back when the admin leaves
// the assign menu without picking anyone.
func (r *Router) restoreActionKeyboard(ctx context.Context, actor service.ActorRef, query *tgbotapi.CallbackQuery, ticketID int64) error {
	t, err := r.lifecycle.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if query.Message == nil {
		return nil
	}
	markup := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if kb := TicketKeyboard(t.ID, r.lifecycle.AvailableActions(ctx, t, actor.ID)); kb != nil {
		markup = *kb
	}
	if err := r.client.EditKeyboard(query.Message.Chat.ID, query.Message.MessageID, markup); err != nil {
		r.logger.Warn("keyboard restore failed", zap.Error(err))
	}
	return nil
}

// callbackError surfaces a failed key press. Rights failures on the
// admin keys rewrite the card, matching what a demoted admin expects to
// see; the assignee-only keys get their own wording instead.
func (r *Router) callbackError(query *tgbotapi.CallbackQuery, action string, err error) {
	if apperrors.ToDomainError(err).Code == apperrors.CodeForbidden {
		switch {
		case action == CallbackDone:
			r.answer(query.ID, "Только исполнитель или админ может закрыть.")
			return
		case action == CallbackDecline:
			r.answer(query.ID, "Только исполнитель или админ может отказать.")
			return
		case adminGatedCallbacks[action] && query.Message != nil:
			r.editCard(query, MsgForbidden)
			r.answer(query.ID, "")
			return
		}
	}
	r.answer(query.ID, ErrorText(err))
}

// appendToCard extends the card text in place. The edit drops the
// inline keyboard along with the old text, which is the point: a card
// that just changed state should stop offering stale keys.
func (r *Router) appendToCard(query *tgbotapi.CallbackQuery, suffix string) {
	if query.Message == nil {
		return
	}
	if err := r.client.EditText(query.Message.Chat.ID, query.Message.MessageID, query.Message.Text+suffix); err != nil {
		r.logger.Warn("card edit failed", zap.Error(err))
	}
}

func (r *Router) editCard(query *tgbotapi.CallbackQuery, text string) {
	if query.Message == nil {
		return
	}
	if err := r.client.EditText(query.Message.Chat.ID, query.Message.MessageID, text); err != nil {
		r.logger.Warn("card edit failed", zap.Error(err))
	}
}

func (r *Router) answer(callbackID, text string) {
	if err := r.client.AnswerCallback(callbackID, text); err != nil {
		r.logger.Warn("callback answer failed", zap.Error(err))
	}
}

func chatOf(query *tgbotapi.CallbackQuery) int64 {
	if query.Message != nil {
		return query.Message.Chat.ID
	}
	return query.From.ID
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(apperrors.ToDomainError(err).Code)
}
