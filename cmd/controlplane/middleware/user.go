package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pixeon/renderplane/common/clients"
)

// RequireUserID extracts the X-User-ID header and installs it in the
// request context. Requests without the header are rejected; identity
// issuance is handled upstream by the API gateway.
func RequireUserID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := c.Request().Header.Get("X-User-ID")
			if userID == "" {
				return c.JSON(http.StatusUnauthorized, map[string]any{
					"error": "X-User-ID header is required",
				})
			}
			ctx := clients.WithUserID(c.Request().Context(), userID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// GetUserID returns the user id stored by RequireUserID
func GetUserID(c echo.Context) string {
	userID, _ := clients.GetUserID(c.Request().Context())
	return userID
}
