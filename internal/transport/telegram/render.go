package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/leaftogo/deskbot/internal/domain"
	"github.com/leaftogo/deskbot/internal/service"
	apperrors "github.com/leaftogo/deskbot/pkg/util"
)

// dateLayout is the human timestamp format on cards, UTC.
const dateLayout = "2006-01-02 15:04"

// messageChunkLimit stays under Telegram's 4096-character message cap.
const messageChunkLimit = 4000

const placeholder = "—"

// Reply menu labels. These double as the inbound match keys, so they
// never change without a migration plan for pinned keyboards.
const (
	MenuNewRepair   = "🛠 Заявка на ремонт"
	MenuMyTickets   = "🧾 Мои заявки"
	MenuNewPurchase = "🛒 Заявка на покупку"
	MenuRepairQueue = "🛠 Заявки на ремонт"
	MenuPurchases   = "🛒 Покупки"
	MenuJournal     = "📓 Журнал"
)

const (
	MsgGreeting        = "Привет это робот инженерно технической службы"
	MsgUseMenu         = "Используй кнопки меню или /help."
	MsgPhotoNeedsFlow  = "Чтобы создать заявку с фото, нажми «🛠 Заявка на ремонт», затем пришли фото с подписью."
	MsgRepairCreated   = "Заявка на ремонт создана. Админы уведомлены."
	MsgPhotoCreated    = "Заявка на ремонт с фото создана. Админы уведомлены."
	MsgPurchaseCreated = "Заявка на покупку отправлена. Ожидает решения админа."
	MsgWizardCanceled  = "Создание заявки отменено."
	MsgNothingFound    = "Ничего не найдено."
	MsgNoTicketsYet    = "У тебя пока нет заявок."
	MsgNoNewRepairs    = "Нет новых заявок на ремонт."
	MsgNoAvailable     = "Нет доступных заявок."
	MsgNoNewPurchases  = "Нет новых заявок на покупку."
	MsgEmptyJournal    = "Журнал пуст."
	MsgEmptyExport     = "Нет данных для экспорта."
	MsgEmptyAssigned   = "Пока пусто."
	MsgAskCancelReason = "Напиши причину отмены сообщением:"
	MsgAskReason       = "Напиши причину отказа сообщением:"
	MsgPickAssignee    = "Выбери техника или команду ниже."
)

const (
	UsageFind     = "Использование: /find <строка|#id>"
	UsageExport   = "Использование: /export [week|month]"
	UsageAddAdmin = "Использование: /add_admin <user_id|@username>"
	UsageAddTech  = "Использование: /add_tech <user_id|@username>"
	UsageRevoke   = "Использование: /revoke <user_id|@username>"
)

const HelpText = "Команды и действия:\n\n" +
	"• 🛠 Заявка на ремонт — нажми кнопку и пройди шаги: место, оборудование, приоритет, описание (можно фото с подписью).\n" +
	"• 🛒 Заявка на покупку — нажми кнопку и отправь описание.\n" +
	"• 🧾 Мои заявки — список твоих заявок.\n" +
	"• 🛠 Заявки на ремонт — новые заявки (и свои в работе).\n" +
	"• 📓 Журнал — закрытые ремонты за период (для админов).\n\n" +
	"Команды:\n" +
	"/repairs [status] [page] — список заявок на ремонт. status: new|in_work|done|all.\n" +
	"/me [status] [page] — мои заявки как исполнителя (механика). status: new|in_work|done|all.\n" +
	"/find <текст|#id> — поиск заявок (для админов).\n" +
	"/export [week|month] — экспорт CSV.\n" +
	"/journal [days] — журнал за N дней (по умолчанию 30).\n" +
	"/add_admin <id> — добавить админа (для админов).\n" +
	"/add_tech <id> — добавить техника (для админов).\n" +
	"/revoke <id> — отозвать выданную роль (для админов).\n" +
	"/roles — показать роли.\n" +
	"/whoami — показать твой user_id.\n" +
	"/help — эта справка.\n"

var repairStatusLabels = map[domain.TicketStatus]string{
	domain.TicketStatusNew:      "🆕 Новая",
	domain.TicketStatusInWork:   "⏱ В работе",
	domain.TicketStatusDone:     "✅ Выполнена",
	domain.TicketStatusRejected: "🛑 Отказ исполнителя",
	domain.TicketStatusCanceled: "🗑 Отменена",
}

var purchaseStatusLabels = map[domain.TicketStatus]string{
	domain.TicketStatusNew:      "🆕 Новая",
	domain.TicketStatusApproved: "✅ Одобрена",
	domain.TicketStatusRejected: "🛑 Отклонена",
	domain.TicketStatusCanceled: "🗑 Отменена",
}

var actionLabels = map[domain.TicketAction]string{
	domain.ActionEscalate:   "⚡ Приоритет ↑",
	domain.ActionAssignSelf: "👤 Назначить себе",
	domain.ActionAssignMenu: "👥 Назначить механику",
	domain.ActionClaim:      "⏱ В работу",
	domain.ActionComplete:   "✅ Выполнено",
	domain.ActionDecline:    "🛑 Отказ (с комментарием)",
	domain.ActionCancel:     "🗑 Отмена (с причиной)",
	domain.ActionApprove:    "✅ Одобрить",
	domain.ActionReject:     "🛑 Отклонить (с причиной)",
}

var actionCallbacks = map[domain.TicketAction]string{
	domain.ActionEscalate:   CallbackPriority,
	domain.ActionAssignSelf: CallbackAssignSelf,
	domain.ActionAssignMenu: CallbackAssignMenu,
	domain.ActionClaim:      CallbackToWork,
	domain.ActionComplete:   CallbackDone,
	domain.ActionDecline:    CallbackDecline,
	domain.ActionCancel:     CallbackCancel,
	domain.ActionApprove:    CallbackApprove,
	domain.ActionReject:     CallbackReject,
}

// StatusLabel renders a status for the given ticket kind.
func StatusLabel(kind domain.TicketKind, status domain.TicketStatus) string {
	labels := repairStatusLabels
	if kind == domain.TicketKindPurchase {
		labels = purchaseStatusLabels
	}
	if label, ok := labels[status]; ok {
		return label
	}
	return string(status)
}

// FormatTicketCard renders the single-message ticket card.
func FormatTicketCard(t *domain.Ticket) string {
	if t.Kind == domain.TicketKindPurchase {
		var b strings.Builder
		fmt.Fprintf(&b, "🛒 #%d • %s\n%s", t.ID, StatusLabel(t.Kind, t.Status), t.Description)
		fmt.Fprintf(&b, "\nСоздана: %s", formatTime(&t.CreatedAt))
		appendReason(&b, t)
		return b.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🛠 #%d • %s • Приоритет: %s • Исполнитель: %s\n%s",
		t.ID, StatusLabel(t.Kind, t.Status), t.Priority, assigneeLabel(t), t.Description)
	if t.Location != "" || t.Equipment != "" {
		fmt.Fprintf(&b, "\nМесто: %s • Оборудование: %s",
			orPlaceholder(t.Location), orPlaceholder(t.Equipment))
	}
	fmt.Fprintf(&b, "\nСоздана: %s", formatTime(&t.CreatedAt))
	if t.StartedAt != nil {
		fmt.Fprintf(&b, " • Взята: %s", formatTime(t.StartedAt))
	}
	if t.DoneAt != nil {
		fmt.Fprintf(&b, " • Готово: %s • Длит.: %s",
			formatTime(t.DoneAt), service.FormatDuration(t.StartedAt, t.DoneAt))
	}
	appendReason(&b, t)
	return b.String()
}

// FormatJournalLine renders one completed repair for the journal dump.
func FormatJournalLine(t *domain.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d • %s • Взята: %s • Готово: %s • Длит.: %s\n%s",
		t.ID, assigneeLabel(t), formatTime(t.StartedAt), formatTime(t.DoneAt),
		service.FormatDuration(t.StartedAt, t.DoneAt), t.Description)
	if t.Reason != "" {
		fmt.Fprintf(&b, "\nПричина: %s", t.Reason)
	}
	return b.String()
}

// MainMenuKeyboard is the persistent reply keyboard. Admins get the
// extra row.
func MainMenuKeyboard(admin bool) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		{tgbotapi.NewKeyboardButton(MenuNewRepair), tgbotapi.NewKeyboardButton(MenuMyTickets)},
		{tgbotapi.NewKeyboardButton(MenuNewPurchase), tgbotapi.NewKeyboardButton(MenuRepairQueue)},
	}
	if admin {
		rows = append(rows, []tgbotapi.KeyboardButton{
			tgbotapi.NewKeyboardButton(MenuPurchases),
			tgbotapi.NewKeyboardButton(MenuJournal),
		})
	}
	return tgbotapi.NewReplyKeyboard(rows...)
}

// TicketKeyboard renders the action keys the viewer is entitled to. A
// nil return means no keyboard at all.
func TicketKeyboard(ticketID int64, actions []domain.TicketAction) *tgbotapi.InlineKeyboardMarkup {
	if len(actions) == 0 {
		return nil
	}
	present := make(map[domain.TicketAction]bool, len(actions))
	for _, action := range actions {
		present[action] = true
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	addRow := func(actions ...domain.TicketAction) {
		var row []tgbotapi.InlineKeyboardButton
		for _, action := range actions {
			if !present[action] {
				continue
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(
				actionLabels[action], TicketCallback(actionCallbacks[action], ticketID)))
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}

	addRow(domain.ActionEscalate)
	addRow(domain.ActionAssignSelf, domain.ActionAssignMenu)
	addRow(domain.ActionClaim)
	addRow(domain.ActionComplete)
	addRow(domain.ActionDecline)
	addRow(domain.ActionApprove, domain.ActionReject)
	addRow(domain.ActionCancel)

	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// AssignTarget is one pickable assignee on the dispatch menu.
type AssignTarget struct {
	ID    int64
	Label string
}

// AssignMenuKeyboard lists dispatch targets three per row, with the
// back key restoring the action keyboard.
func AssignMenuKeyboard(ticketID int64, targets []AssignTarget) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, target := range targets {
		label := target.Label
		if label == "" {
			label = strconv.FormatInt(target.ID, 10)
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			label, AssignCallback(target.ID, ticketID)))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("↩️ Назад", TicketCallback(CallbackAssignBack, ticketID)),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// WizardPromptText words the question for the wizard step.
func WizardPromptText(prompt *service.Prompt) string {
	switch prompt.Step {
	case domain.StepChooseLocation:
		return "Где проблема? Выбери место или нажми «Другое»."
	case domain.StepLocationOther:
		return "Напиши место текстом."
	case domain.StepChooseEquipment:
		return "Что сломалось? Выбери оборудование или нажми «Другое»."
	case domain.StepEquipmentOther:
		return "Напиши оборудование текстом."
	case domain.StepChoosePriority:
		return "Выбери приоритет."
	case domain.StepComposeDescription:
		if prompt.Kind == domain.TicketKindPurchase {
			return "Опиши, что нужно купить (наименование, количество, почему)."
		}
		return "Опиши проблему. Можно прикрепить фото с подписью."
	default:
		return MsgUseMenu
	}
}

// WizardKeyboard renders the option picks plus the control row. Even a
// free-text step keeps the cancel button, so the markup is never empty.
func WizardKeyboard(prompt *service.Prompt) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	perRow := 2
	if prompt.Step == domain.StepChoosePriority {
		perRow = 3
	}
	for i, option := range prompt.Options {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			option, WizardCallback(service.WizardButtonPick, i)))
		if len(row) == perRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	var controls []tgbotapi.InlineKeyboardButton
	if prompt.OfferOther {
		controls = append(controls, tgbotapi.NewInlineKeyboardButtonData(
			"Другое", WizardCallback(service.WizardButtonOther, 0)))
	}
	if prompt.CanBack {
		controls = append(controls, tgbotapi.NewInlineKeyboardButtonData(
			"↩️ Назад", WizardCallback(service.WizardButtonBack, 0)))
	}
	controls = append(controls, tgbotapi.NewInlineKeyboardButtonData(
		"❌ Отмена", WizardCallback(service.WizardButtonCancel, 0)))
	rows = append(rows, controls)

	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// CreatedAck words the confirmation the author sees.
func CreatedAck(t *domain.Ticket) string {
	if t.Kind == domain.TicketKindPurchase {
		return MsgPurchaseCreated
	}
	if t.PhotoFileID != "" {
		return MsgPhotoCreated
	}
	return MsgRepairCreated
}

// ResolvedAck words the confirmation after a captured reason applied.
func ResolvedAck(t *domain.Ticket, action domain.ReasonAction) string {
	switch action {
	case domain.ReasonCancel:
		return fmt.Sprintf("Заявка #%d отменена.\nПричина: %s", t.ID, t.Reason)
	case domain.ReasonDecline:
		return fmt.Sprintf("Заявка #%d — отказ исполнителя.\nКомментарий: %s", t.ID, t.Reason)
	default:
		return fmt.Sprintf("Заявка #%d отклонена.\nПричина: %s", t.ID, t.Reason)
	}
}

// CreatedHeader words the admin broadcast headline for a new ticket.
func CreatedHeader(t *domain.Ticket) string {
	switch {
	case t.Kind == domain.TicketKindPurchase:
		return fmt.Sprintf("🆕 Новая заявка на покупку от %s:", t.AuthorName)
	case t.PhotoFileID != "":
		return fmt.Sprintf("🆕 Новая заявка на ремонт с фото от %s:", t.AuthorName)
	default:
		return fmt.Sprintf("🆕 Новая заявка на ремонт от %s:", t.AuthorName)
	}
}

// ResolutionText words the author-facing decision notice.
func ResolutionText(t *domain.Ticket) string {
	switch {
	case t.Status == domain.TicketStatusApproved:
		return fmt.Sprintf("Твоя заявка на покупку #%d одобрена.", t.ID)
	case t.Kind == domain.TicketKindRepair:
		return fmt.Sprintf("Твоя заявка #%d — отказ исполнителя.\nКомментарий: %s", t.ID, t.Reason)
	default:
		return fmt.Sprintf("Твоя заявка #%d отклонена.\nПричина: %s", t.ID, t.Reason)
	}
}

// WhoamiText reports the caller's identifiers back to them.
func WhoamiText(userID int64, username string) string {
	return fmt.Sprintf("Твой user_id: %d\nusername: @%s", userID, orPlaceholder(username))
}

// GrantAck confirms a role grant.
func GrantAck(targetID int64, role domain.Role) string {
	word := "admin"
	if role == domain.RoleTechnician {
		word = "tech"
	}
	return fmt.Sprintf("Пользователь %d добавлен как %s.", targetID, word)
}

// RevokeAck confirms removal of a stored grant.
func RevokeAck(targetID int64) string {
	return fmt.Sprintf("Права пользователя %d отозваны.", targetID)
}

// RolesText lists the working role sets.
func RolesText(admins, techs []int64) string {
	return "Роли:\n\nАдмины:\n" + idList(admins) + "\n\nМеханики:\n" + idList(techs)
}

func idList(ids []int64) string {
	if len(ids) == 0 {
		return placeholder
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

// MsgForbidden is the uniform rights refusal.
const MsgForbidden = "Недостаточно прав."

// ErrorText maps a failed operation onto the reply the actor sees.
func ErrorText(err error) string {
	domainErr := apperrors.ToDomainError(err)
	switch domainErr.Code {
	case apperrors.CodeForbidden:
		return MsgForbidden
	case apperrors.CodeAlreadyTaken:
		return "Заявка назначена другому."
	case apperrors.CodeStaleState:
		// A kind detail means the key was pressed on a card the action
		// never applied to, not that the ticket moved on.
		if _, ok := domainErr.Details["kind"]; ok {
			return "Некорректная заявка."
		}
		return "Заявка уже не новая."
	case apperrors.CodeNotFound:
		return "Заявка не найдена."
	case apperrors.CodeSessionLost:
		return "Контекст потерян. Попробуй снова."
	case apperrors.CodeInvalidInput:
		if field, ok := domainErr.Details["field"].(string); ok {
			if text, ok := invalidFieldTexts[field]; ok {
				return text
			}
		}
		return "Проверь ввод и попробуй ещё раз."
	default:
		return "Что-то пошло не так. Попробуй ещё раз."
	}
}

var invalidFieldTexts = map[string]string{
	"location":    "Место не может быть пустым. Напиши текстом.",
	"equipment":   "Оборудование не может быть пустым. Напиши текстом.",
	"priority":    "Выбери приоритет кнопкой.",
	"description": "Опиши заявку текстом.",
	"caption":     "Добавь подпись к фото — это будет описанием заявки.",
	"reason":      "Причина не может быть пустой. Напиши текстом.",
	"step":        "Сначала заверши текущий шаг.",
	"assignee":    "Укажи числовой user_id или известный @username (после того как пользователь написал боту /start).",
}

// ChunkText splits a long dump into sendable pieces without breaking
// runes.
func ChunkText(s string) []string {
	runes := []rune(s)
	if len(runes) <= messageChunkLimit {
		return []string{s}
	}
	var chunks []string
	for start := 0; start < len(runes); start += messageChunkLimit {
		end := start + messageChunkLimit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func assigneeLabel(t *domain.Ticket) string {
	if t.AssigneeName != "" {
		return t.AssigneeName
	}
	if t.AssigneeID != nil {
		return strconv.FormatInt(*t.AssigneeID, 10)
	}
	return placeholder
}

func appendReason(b *strings.Builder, t *domain.Ticket) {
	if t.Reason == "" {
		return
	}
	if t.Status == domain.TicketStatusCanceled || t.Status == domain.TicketStatusRejected {
		fmt.Fprintf(b, "\nПричина: %s", t.Reason)
	}
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return placeholder
	}
	return t.UTC().Format(dateLayout)
}
