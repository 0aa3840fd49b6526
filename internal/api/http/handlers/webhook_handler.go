package handlers

import (
	"encoding/json"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/leaftogo/deskbot/pkg/util"
)

// UpdateSink accepts updates parsed off the webhook. The bot's pump
// implements it.
type UpdateSink interface {
	EnqueueWebhookUpdate(update tgbotapi.Update) bool
}

// WebhookHandler receives Telegram webhook deliveries. The route it is
// mounted on embeds the webhook secret, so a request reaching the
// handler has already authenticated.
type WebhookHandler struct {
	sink UpdateSink
}

// NewWebhookHandler returns a new handler instance.
func NewWebhookHandler(sink UpdateSink) *WebhookHandler {
	return &WebhookHandler{sink: sink}
}

// Receive parses one update and hands it to the processing loop.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	var update tgbotapi.Update
	if err := json.Unmarshal(c.Body(), &update); err != nil {
		return apperrors.NewInvalidInput("malformed update payload", nil)
	}
	if !h.sink.EnqueueWebhookUpdate(update) {
		// Non-2xx makes Telegram redeliver once the queue drains.
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
	return c.SendStatus(fiber.StatusOK)
}
