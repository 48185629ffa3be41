package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

// UserIDKey is the context key holding the authenticated user id.
const UserIDKey ContextKey = "user_id"

// ExtractUserID requires the X-User-ID header on every request and stores
// it in the request context. Identity verification happens upstream; the
// engine only scopes data by owner.
func ExtractUserID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := c.Request().Header.Get("X-User-ID")
			if userID == "" {
				return c.JSON(http.StatusUnauthorized, map[string]any{
					"error": "X-User-ID header is required",
				})
			}
			c.Set(string(UserIDKey), userID)
			return next(c)
		}
	}
}

// GetUserID retrieves the user id from the request context, "" if unset.
func GetUserID(c echo.Context) string {
	v := c.Get(string(UserIDKey))
	if v == nil {
		return ""
	}
	return v.(string)
}
