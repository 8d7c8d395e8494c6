package handlers

import (
	"time"

	applog "sleepoutside/internal/log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
)

// NewCSRF guards every unsafe request. Page forms send the token in the
// "csrf" field, API clients in the X-Csrf-Token header; both are checked
// against the csrf_ cookie.
func NewCSRF(secure bool) fiber.Handler {
	return csrf.New(csrf.Config{
		Extractor:      csrfToken,
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		CookieSecure:   secure,
		Expiration:     2 * time.Hour,
		ContextKey:     "csrf",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Security(c, "csrf.fail", map[string]any{"reason": err.Error()})
			if isAPI(c) {
				return apiError(c, fiber.StatusForbidden, "security check failed")
			}
			return c.Status(fiber.StatusForbidden).Render("notfound", fiber.Map{"Message": "Security check failed. Please refresh and try again."})
		},
	})
}

func csrfToken(c *fiber.Ctx) (string, error) {
	if tok := c.Get("X-Csrf-Token"); tok != "" {
		return tok, nil
	}
	return csrf.CsrfFromForm("csrf")(c)
}
