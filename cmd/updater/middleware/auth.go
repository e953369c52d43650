package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// TokenHeader carries the admin token for mutating update endpoints
const TokenHeader = "X-Update-Token"

// RequireAdminToken guards mutating endpoints with a shared admin token.
// An empty configured token disables the check, for deployments where the
// updater sits behind an authenticating proxy.
func RequireAdminToken(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return next(c)
			}

			provided := c.Request().Header.Get(TokenHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "invalid or missing " + TokenHeader + " header",
				})
			}

			return next(c)
		}
	}
}
