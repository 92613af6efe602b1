package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mkrylosov/orderhub/internal/service/authz"
)

type Middleware struct {
	Gate *authz.Gate
}

// Require rejects requests whose access token is missing, invalid, or
// lacks the given role. An empty role only requires a valid session.
func (m *Middleware) Require(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := tokenFromRequest(c)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}

			decision, err := m.Gate.Authorize(c.Request().Context(), raw, role)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, decision.Reason)
			}
			if !decision.Allowed {
				return echo.NewHTTPError(http.StatusForbidden, decision.Reason)
			}

			c.Set("userID", decision.UserID)
			c.Set("roles", decision.Roles)
			return next(c)
		}
	}
}

func tokenFromRequest(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return after
		}
	}
	if cookie, err := c.Cookie("accessToken"); err == nil {
		return cookie.Value
	}
	return ""
}

func UserID(c echo.Context) (uint, bool) {
	id, ok := c.Get("userID").(uint)
	return id, ok
}
