package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/leaftogo/deskbot/pkg/util"
)

const exportPeriodKey = "export_period"

// RequireExportToken guards the CSV download route. The token rides in
// the query string because the link has to work from a plain chat
// message, with no way to set headers.
func RequireExportToken(tokens *ExportTokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			return apperrors.NewUnauthorized("missing token")
		}
		claims, err := tokens.Parse(token)
		if err != nil {
			return apperrors.NewUnauthorized("invalid or expired token")
		}
		c.Locals(exportPeriodKey, claims.Period)
		return c.Next()
	}
}

// ExportPeriodFromContext retrieves the period the validated token was
// issued for.
func ExportPeriodFromContext(c *fiber.Ctx) (string, bool) {
	period, ok := c.Locals(exportPeriodKey).(string)
	return period, ok && period != ""
}
