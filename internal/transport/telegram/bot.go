package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/leaftogo/deskbot/internal/config"
)

// UpdateHandler consumes one inbound update. The router implements it.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// webhookQueueSize buffers bursts between the HTTP handler and the
// processing loop.
const webhookQueueSize = 128

// Bot pumps updates from Telegram into the handler, by long polling or
// from the webhook endpoint depending on configuration.
type Bot struct {
	client        *Client
	cfg           config.TelegramConfig
	publicBaseURL string
	handler       UpdateHandler
	logger        *zap.Logger
	webhookQueue  chan tgbotapi.Update
}

// NewBot wires the pump. publicBaseURL is only needed in webhook mode.
func NewBot(client *Client, cfg config.TelegramConfig, publicBaseURL string, handler UpdateHandler, logger *zap.Logger) *Bot {
	return &Bot{
		client:        client,
		cfg:           cfg,
		publicBaseURL: publicBaseURL,
		handler:       handler,
		logger:        logger,
		webhookQueue:  make(chan tgbotapi.Update, webhookQueueSize),
	}
}

// Run processes updates until the context is canceled. Updates are
// handled sequentially; races between concurrent actors are settled in
// the repository, not here.
func (b *Bot) Run(ctx context.Context) error {
	if _, err := b.client.api.Request(tgbotapi.DeleteWebhookConfig{
		DropPendingUpdates: b.cfg.DropPendingOnStartup,
	}); err != nil {
		return fmt.Errorf("reset webhook: %w", err)
	}

	if b.cfg.Mode == config.TelegramModeWebhook {
		return b.runWebhook(ctx)
	}
	return b.runPolling(ctx)
}

func (b *Bot) runPolling(ctx context.Context) error {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = b.cfg.PollTimeoutSeconds
	updates := b.client.api.GetUpdatesChan(updateCfg)
	b.logger.Info("telegram polling started", zap.Int("timeout_seconds", updateCfg.Timeout))

	for {
		select {
		case <-ctx.Done():
			b.client.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handler.HandleUpdate(ctx, update)
		}
	}
}

func (b *Bot) runWebhook(ctx context.Context) error {
	webhook, err := tgbotapi.NewWebhook(b.WebhookURL())
	if err != nil {
		return fmt.Errorf("build webhook config: %w", err)
	}
	if _, err := b.client.api.Request(webhook); err != nil {
		return fmt.Errorf("register webhook: %w", err)
	}
	b.logger.Info("telegram webhook registered", zap.String("path", b.WebhookPath()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-b.webhookQueue:
			b.handler.HandleUpdate(ctx, update)
		}
	}
}

// EnqueueWebhookUpdate hands an update parsed by the HTTP endpoint to
// the processing loop. Overflow is dropped; Telegram retries delivery.
func (b *Bot) EnqueueWebhookUpdate(update tgbotapi.Update) bool {
	select {
	case b.webhookQueue <- update:
		return true
	default:
		b.logger.Warn("webhook queue full, dropping update", zap.Int("update_id", update.UpdateID))
		return false
	}
}

// WebhookPath is the local HTTP path updates arrive on. The secret in
// the path is what authenticates Telegram, since the Bot API offers no
// other caller identity.
func (b *Bot) WebhookPath() string {
	return "/telegram/webhook/" + b.cfg.WebhookSecret
}

// WebhookURL is the public URL registered with Telegram.
func (b *Bot) WebhookURL() string {
	return strings.TrimRight(b.publicBaseURL, "/") + b.WebhookPath()
}
