package middleware

import "github.com/labstack/echo/v4"

// ContextKeyUserID holds the authenticated user id (uint64).
const ContextKeyUserID = "user_id"

// UserID returns the authenticated user id, or 0 for a guest.
func UserID(c echo.Context) uint64 {
	if id, ok := c.Get(ContextKeyUserID).(uint64); ok {
		return id
	}
	return 0
}

// rateKeyUser is the user component of a rate limit key.
func rateKeyUser(c echo.Context) string {
	if id := UserID(c); id != 0 {
		return uitoa(id)
	}
	return "guest"
}
