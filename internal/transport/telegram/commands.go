package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/leaftogo/deskbot/internal/domain"
	"github.com/leaftogo/deskbot/internal/service"
)

func (r *Router) handleCommand(ctx context.Context, actor service.ActorRef, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		r.cmdStart(ctx, actor, chatID)
	case "help":
		r.reply(chatID, HelpText)
	case "whoami":
		r.reply(chatID, WhoamiText(msg.From.ID, msg.From.UserName))
	case "repairs":
		r.cmdRepairs(ctx, actor, chatID, args)
	case "me":
		r.cmdMe(ctx, actor, chatID, args)
	case "find":
		r.cmdFind(ctx, actor, chatID, strings.Join(args, " "))
	case "export":
		r.cmdExport(ctx, actor, chatID, args)
	case "journal":
		r.cmdJournal(ctx, actor, chatID, args)
	case "add_admin":
		r.cmdGrant(ctx, actor, chatID, args, domain.RoleAdmin)
	case "add_tech":
		r.cmdGrant(ctx, actor, chatID, args, domain.RoleTechnician)
	case "revoke":
		r.cmdRevoke(ctx, actor, chatID, args)
	case "roles":
		r.cmdRoles(ctx, chatID)
	}
	// Unknown commands are ignored, same as stray text in groups.
}

// cmdStart greets and pins the menu. It also drops any dialog the actor
// had going, so /start always lands them in a clean state.
func (r *Router) cmdStart(ctx context.Context, actor service.ActorRef, chatID int64) {
	r.wizard.Abandon(ctx, actor.ID)
	admin := r.roles.IsAdmin(ctx, actor.ID)
	r.replyWithKeyboard(chatID, MsgGreeting, MainMenuKeyboard(admin))
}

// cmdRepairs lists repair tickets: /repairs [new|in_work|done|all] [page].
func (r *Router) cmdRepairs(ctx context.Context, actor service.ActorRef, chatID int64, args []string) {
	status := statusArg(args, domain.TicketStatusNew)
	admin := r.roles.IsAdmin(ctx, actor.ID)
	page, err := r.journal.RepairQueue(ctx, actor.ID, admin, status, pageArg(args))
	if err != nil {
		r.reply(chatID, ErrorText(err))
		return
	}
	if len(page.Items) == 0 {
		r.reply(chatID, MsgNothingFound)
		return
	}
	r.sendTicketCards(ctx, chatID, page.Items, actor.ID)
}

// cmdMe lists the caller's assigned repairs: /me [new|in_work|done|all] [page].
func (r *Router) cmdMe(ctx context.Context, actor service.ActorRef, chatID int64, args []string) {
	status := statusArg(args, domain.TicketStatusInWork)
	page, err := r.journal.AssignedTickets(ctx, actor.ID, status, pageArg(args))
	if err != nil {
		r.reply(chatID, ErrorText(err))
		return
	}
	if len(page.Items) == 0 {
		r.reply(chatID, MsgEmptyAssigned)
		return
	}
	r.sendTicketCards(ctx, chatID, page.Items, actor.ID)
}

func (r *Router) cmdFind(ctx context.Context, actor service.ActorRef, chatID int64, query string) {
	if !r.roles.IsAdmin(ctx, actor.ID) {
		r.reply(chatID, MsgForbidden)
		return
	}
	if query == "" {
		r.reply(chatID, UsageFind)
		return
	}
	items, err := r.journal.Search(ctx, query, 0)
	if err != nil {
		r.reply(chatID, ErrorText(err))
		return
	}
	if len(items) == 0 {
		r.reply(chatID, MsgNothingFound)
		return
	}
	r.sendTicketCards(ctx, chatID, items, actor.ID)
}

func (r *Router) cmdExport(ctx context.Context, actor service.ActorRef, chatID int64, args []string) {
	if !r.roles.IsAdmin(ctx, actor.ID) {
		r.reply(chatID, MsgForbidden)
		return
	}
	period := "week"
	if len(args) > 0 {
		period = strings.ToLower(args[0])
	}
	days, ok := service.PeriodDays(period)
	if !ok {
		r.reply(chatID, UsageExport)
		return
	}

	from := time.Now().UTC().AddDate(0, 0, -days)
	data, count, err := r.journal.ExportCSV(ctx, from)
	if err != nil {
		r.reply(chatID, ErrorText(err))
		return
	}
	if count == 0 {
		r.reply(chatID, MsgEmptyExport)
		return
	}

	caption := fmt.Sprintf("Экспорт за %s.", period)
	if link := r.exportLink(period); link != "" {
		caption += "\nСсылка на скачивание: " + link
	}
	filename := fmt.Sprintf("tickets_%s.csv", period)
	if err := r.client.SendDocument(chatID, filename, data, caption); err != nil {
		r.logger.Warn("export send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// exportLink signs a short-lived download URL for the HTTP sidecar, or
// returns "" when link signing is not configured.
func (r *Router) exportLink(period string) string {
	if r.export == nil || r.baseURL == "" {
		return ""
	}
	token, _, err := r.export.Issue(period)
	if err != nil {
		r.logger.Warn("export token issue failed", zap.Error(err))
		return ""
	}
	return r.baseURL + "/export?token=" + token
}

// cmdJournal prints the completion journal: /journal [days].
func (r *Router) cmdJournal(ctx context.Context, actor service.ActorRef, chatID int64, args []string) {
	if !r.roles.IsAdmin(ctx, actor.ID) {
		r.reply(chatID, MsgForbidden)
		return
	}
	days := service.DefaultJournalDays
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n != 0 {
			days = n
		}
	}
	r.sendJournal(ctx, chatID, days)
}

func (r *Router) cmdGrant(ctx context.Context, actor service.ActorRef, chatID int64, args []string, role domain.Role) {
	if !r.roles.IsAdmin(ctx, actor.ID) {
		r.reply(chatID, MsgForbidden)
		return
	}
	if len(args) == 0 {
		if role == domain.RoleAdmin {
			r.reply(chatID, UsageAddAdmin)
		} else {
			r.reply(chatID, UsageAddTech)
		}
		return
	}
	targetID, err := r.roles.ResolveActor(ctx, args[0])
	if err != nil {
		r.reply(chatID, ErrorText(err))
		return
	}
	if err := r.roles.Grant(ctx, actor.ID, targetID, role); err != nil {
		r.reply(chatID, ErrorText(err))
		return
	}
	r.reply(chatID, GrantAck(targetID, role))
}

func (r *Router) cmdRevoke(ctx context.Context, actor service.ActorRef, chatID int64, args []string) {
	if !r.roles.IsAdmin(ctx, actor.ID) {
		r.reply(chatID, MsgForbidden)
		return
	}
	if len(args) == 0 {
		r.reply(chatID, UsageRevoke)
		return
	}
	targetID, err := r.roles.ResolveActor(ctx, args[0])
	if err != nil {
		r.reply(chatID, ErrorText(err))
		return
	}
	if err := r.roles.Revoke(ctx, actor.ID, targetID); err != nil {
		r.reply(chatID, ErrorText(err))
		return
	}
	r.reply(chatID, RevokeAck(targetID))
}

func (r *Router) cmdRoles(ctx context.Context, chatID int64) {
	admins, techs, err := r.roles.Roles(ctx)
	if err != nil {
		r.reply(chatID, ErrorText(err))
		return
	}
	r.reply(chatID, RolesText(admins, techs))
}

// statusArg reads the optional status filter. Unknown words keep the
// command's default, "all" lifts the filter entirely.
func statusArg(args []string, fallback domain.TicketStatus) *domain.TicketStatus {
	if len(args) == 0 {
		return &fallback
	}
	switch strings.ToLower(args[0]) {
	case "new":
		s := domain.TicketStatusNew
		return &s
	case "in_work":
		s := domain.TicketStatusInWork
		return &s
	case "done":
		s := domain.TicketStatusDone
		return &s
	case "all":
		return nil
	default:
		return &fallback
	}
}

// pageArg reads the optional 1-based page number from the second slot.
func pageArg(args []string) int {
	if len(args) < 2 {
		return 1
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
