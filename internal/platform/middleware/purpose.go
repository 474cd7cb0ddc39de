package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// PurposeHeader carries the caller's declared purpose of use.
const PurposeHeader = "X-Purpose-Of-Use"

// RequirePurpose rejects requests whose X-Purpose-Of-Use header is missing or
// not one of the allowed values (e.g. TREATMENT, PAYMENT, OPERATIONS).
func RequirePurpose(allowed ...string) echo.MiddlewareFunc {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[strings.ToUpper(a)] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			pou := strings.ToUpper(strings.TrimSpace(c.Request().Header.Get(PurposeHeader)))
			if pou == "" || !set[pou] {
				return echo.NewHTTPError(http.StatusForbidden, "missing/invalid X-Purpose-Of-Use")
			}
			c.Set("purpose_of_use", pou)
			return next(c)
		}
	}
}
