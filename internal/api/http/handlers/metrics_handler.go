package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/leaftogo/deskbot/internal/observability"
)

// MetricsHandler exposes the in-memory counters for scraping.
type MetricsHandler struct {
	metrics *observability.Metrics
}

// NewMetricsHandler returns a new handler instance.
func NewMetricsHandler(metrics *observability.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Snapshot dumps the current counters.
func (h *MetricsHandler) Snapshot(c *fiber.Ctx) error {
	return c.JSON(h.metrics.Snapshot())
}
