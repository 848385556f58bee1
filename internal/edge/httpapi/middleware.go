package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/nutritrack/internal/edge/auth"
)

const senderKey = "sender"

// requireSender accepts requests carrying a valid bearer token and stores
// its subject under senderKey.
func (s *Server) requireSender(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
		}

		sender, err := auth.SenderFromToken(token, s.secret)
		if err != nil {
			s.logger.Warn(c.Request().Context(), "rejected token", "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		c.Set(senderKey, sender)
		return next(c)
	}
}
