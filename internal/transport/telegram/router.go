package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/leaftogo/deskbot/internal/auth"
	"github.com/leaftogo/deskbot/internal/domain"
	"github.com/leaftogo/deskbot/internal/observability"
	"github.com/leaftogo/deskbot/internal/service"
)

// Router turns Telegram updates into service calls and wires replies
// back through the client. Updates are handled one at a time; write
// races are settled by the ticket store, not here.
type Router struct {
	client    *Client
	roles     *service.RoleService
	lifecycle *service.LifecycleService
	wizard    *service.WizardService
	journal   *service.JournalService
	export    *auth.ExportTokenManager
	baseURL   string
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// RouterDependencies bundles dependencies for the router. ExportTokens
// and PublicBaseURL are optional; without them /export sends the file
// with no download link.
type RouterDependencies struct {
	Client        *Client
	Roles         *service.RoleService
	Lifecycle     *service.LifecycleService
	Wizard        *service.WizardService
	Journal       *service.JournalService
	ExportTokens  *auth.ExportTokenManager
	PublicBaseURL string
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// NewRouter constructs the router.
func NewRouter(deps RouterDependencies) *Router {
	return &Router{
		client:    deps.Client,
		roles:     deps.Roles,
		lifecycle: deps.Lifecycle,
		wizard:    deps.Wizard,
		journal:   deps.Journal,
		export:    deps.ExportTokens,
		baseURL:   strings.TrimRight(deps.PublicBaseURL, "/"),
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// HandleUpdate implements UpdateHandler.
func (r *Router) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		r.metrics.RecordUpdate("callback")
		r.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		r.metrics.RecordUpdate("message")
		r.handleMessage(ctx, update.Message)
	default:
		r.metrics.RecordUpdate("other")
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	actor := actorFrom(msg.From)
	r.roles.Remember(ctx, actor.ID, msg.From.UserName)

	switch {
	case msg.IsCommand():
		r.handleCommand(ctx, actor, msg)
	case len(msg.Photo) > 0:
		r.handlePhoto(ctx, actor, msg)
	default:
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return
		}
		if r.handleMenu(ctx, actor, msg.Chat.ID, text) {
			return
		}
		res, err := r.wizard.HandleText(ctx, actor, text)
		if err != nil {
			r.reply(msg.Chat.ID, ErrorText(err))
			return
		}
		if res == nil {
			r.reply(msg.Chat.ID, MsgUseMenu)
			return
		}
		r.sendWizardResult(msg.Chat.ID, res)
	}
}

// handleMenu intercepts the reply-keyboard buttons. Returns false when
// the text is no menu entry, so dialog input gets its chance at it.
func (r *Router) handleMenu(ctx context.Context, actor service.ActorRef, chatID int64, text string) bool {
	switch text {
	case MenuNewRepair:
		r.startWizard(ctx, actor, chatID, domain.TicketKindRepair)
	case MenuNewPurchase:
		r.startWizard(ctx, actor, chatID, domain.TicketKindPurchase)
	case MenuMyTickets:
		page, err := r.journal.MyTickets(ctx, actor.ID, 1)
		if err != nil {
			r.reply(chatID, ErrorText(err))
			return true
		}
		if len(page.Items) == 0 {
			r.reply(chatID, MsgNoTicketsYet)
			return true
		}
		r.sendTicketCards(ctx, chatID, page.Items, actor.ID)
	case MenuRepairQueue:
		r.menuRepairQueue(ctx, actor, chatID)
	case MenuPurchases:
		if !r.roles.IsAdmin(ctx, actor.ID) {
			r.reply(chatID, MsgForbidden)
			return true
		}
		page, err := r.journal.PurchaseQueue(ctx, 1)
		if err != nil {
			r.reply(chatID, ErrorText(err))
			return true
		}
		if len(page.Items) == 0 {
			r.reply(chatID, MsgNoNewPurchases)
			return true
		}
		r.sendTicketCards(ctx, chatID, page.Items, actor.ID)
	case MenuJournal:
		if !r.roles.IsAdmin(ctx, actor.ID) {
			r.reply(chatID, MsgForbidden)
			return true
		}
		r.sendJournal(ctx, chatID, service.DefaultJournalDays)
	default:
		return false
	}
	return true
}

// menuRepairQueue is the repair feed behind the menu key. Admins get
// every new ticket; everyone else gets the unassigned pool plus their
// own work in progress.
func (r *Router) menuRepairQueue(ctx context.Context, actor service.ActorRef, chatID int64) {
	if r.roles.IsAdmin(ctx, actor.ID) {
		status := domain.TicketStatusNew
		page, err := r.journal.RepairQueue(ctx, actor.ID, true, &status, 1)
		if err != nil {
			r.reply(chatID, ErrorText(err))
			return
		}
		if len(page.Items) == 0 {
			r.reply(chatID, MsgNoNewRepairs)
			return
		}
		r.sendTicketCards(ctx, chatID, page.Items, actor.ID)
		return
	}

	items, err := r.journal.TechRepairOverview(ctx, actor.ID)
	if err != nil {
		r.reply(chatID, ErrorText(err))
		return
	}
	if len(items) == 0 {
		r.reply(chatID, MsgNoAvailable)
		return
	}
	r.sendTicketCards(ctx, chatID, items, actor.ID)
}

func (r *Router) handlePhoto(ctx context.Context, actor service.ActorRef, msg *tgbotapi.Message) {
	// Telegram sends sizes smallest first; the last one is the original.
	fileID := msg.Photo[len(msg.Photo)-1].FileID
	res, err := r.wizard.HandlePhoto(ctx, actor, fileID, strings.TrimSpace(msg.Caption))
	if err != nil {
		r.reply(msg.Chat.ID, ErrorText(err))
		return
	}
	if res == nil {
		r.reply(msg.Chat.ID, MsgPhotoNeedsFlow)
		return
	}
	r.sendWizardResult(msg.Chat.ID, res)
}

func (r *Router) startWizard(ctx context.Context, actor service.ActorRef, chatID int64, kind domain.TicketKind) {
	res, err := r.wizard.StartCreation(ctx, actor, chatID, kind)
	if err != nil {
		r.reply(chatID, ErrorText(err))
		return
	}
	r.sendWizardResult(chatID, res)
}

func (r *Router) sendWizardResult(chatID int64, res *service.WizardResult) {
	switch {
	case res == nil:
	case res.Canceled:
		r.reply(chatID, MsgWizardCanceled)
	case res.Created != nil:
		r.reply(chatID, CreatedAck(res.Created))
	case res.Resolved != nil:
		r.reply(chatID, ResolvedAck(res.Resolved, res.Action))
	case res.Prompt != nil:
		kb := WizardKeyboard(res.Prompt)
		r.replyWithKeyboard(chatID, WizardPromptText(res.Prompt), *kb)
	}
}

// sendTicketCards sends one card per ticket with a keyboard holding the
// actions this viewer may take, if any.
func (r *Router) sendTicketCards(ctx context.Context, chatID int64, tickets []domain.Ticket, viewerID int64) {
	for i := range tickets {
		t := &tickets[i]
		actions := r.lifecycle.AvailableActions(ctx, t, viewerID)
		card := FormatTicketCard(t)
		if kb := TicketKeyboard(t.ID, actions); kb != nil {
			r.replyWithKeyboard(chatID, card, *kb)
			continue
		}
		r.reply(chatID, card)
	}
}

func (r *Router) sendJournal(ctx context.Context, chatID int64, days int) {
	items, err := r.journal.Journal(ctx, days)
	if err != nil {
		r.reply(chatID, ErrorText(err))
		return
	}
	if len(items) == 0 {
		r.reply(chatID, MsgEmptyJournal)
		return
	}
	lines := make([]string, 0, len(items))
	for i := range items {
		lines = append(lines, FormatJournalLine(&items[i]))
	}
	for _, part := range ChunkText(strings.Join(lines, "\n\n")) {
		r.reply(chatID, part)
	}
}

func (r *Router) reply(chatID int64, text string) {
	if err := r.client.SendText(chatID, text); err != nil {
		r.logger.Warn("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) replyWithKeyboard(chatID int64, text string, keyboard interface{}) {
	if err := r.client.SendTextWithKeyboard(chatID, text, keyboard); err != nil {
		r.logger.Warn("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func actorFrom(user *tgbotapi.User) service.ActorRef {
	actor := service.ActorRef{ID: user.ID}
	if user.UserName != "" {
		actor.Name = "@" + user.UserName
	}
	return actor
}
