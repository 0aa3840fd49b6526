package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/leaftogo/deskbot/internal/api/http/handlers"
	"github.com/leaftogo/deskbot/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Metrics *handlers.MetricsHandler
	Export  *handlers.ExportHandler
	// Webhook and WebhookPath are set in webhook mode only.
	Webhook      *handlers.WebhookHandler
	WebhookPath  string
	ExportTokens *auth.ExportTokenManager
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Snapshot)

	app.Get("/export", auth.RequireExportToken(cfg.ExportTokens), cfg.Export.Download)

	if cfg.Webhook != nil && cfg.WebhookPath != "" {
		app.Post(cfg.WebhookPath, cfg.Webhook.Receive)
	}
}
