package middleware

// identity.go holds small helpers shared across middleware files, mainly the
// identity component of rate-limit keys.

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// currentUserID returns the authenticated user's identifier as a string, or
// "anon" when the request carries no valid token.  JWT numeric claims decode
// as float64, so both string and numeric forms are handled.
func currentUserID(c echo.Context) string {
	switch v := c.Get("user_id").(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return fmt.Sprintf("%.0f", v)
	case uint64:
		return fmt.Sprintf("%d", v)
	}
	return "anon"
}
