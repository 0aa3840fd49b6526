package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/leaftogo/deskbot/internal/auth"
	"github.com/leaftogo/deskbot/internal/service"
	apperrors "github.com/leaftogo/deskbot/pkg/util"
)

// ExportHandler serves the CSV download behind a signed link.
type ExportHandler struct {
	journal *service.JournalService
}

// NewExportHandler returns a new handler instance.
func NewExportHandler(journal *service.JournalService) *ExportHandler {
	return &ExportHandler{journal: journal}
}

// Download streams the export for the period baked into the token. An
// empty window still yields a file with just the header row.
func (h *ExportHandler) Download(c *fiber.Ctx) error {
	period, ok := auth.ExportPeriodFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("missing token")
	}
	days, ok := service.PeriodDays(period)
	if !ok {
		return apperrors.NewInvalidInput("unknown export period", map[string]any{"period": period})
	}

	from := time.Now().UTC().AddDate(0, 0, -days)
	data, _, err := h.journal.ExportCSV(c.UserContext(), from)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="tickets_%s.csv"`, period))
	return c.Send(data)
}
