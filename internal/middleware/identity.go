package middleware

// identity.go holds the caller lookups shared by the rate limiter and the
// handlers.

import "github.com/labstack/echo/v4"

// Subject returns the token subject stored by JWTAuth, or "anon" when the
// request is unauthenticated.
func Subject(c echo.Context) string {
	if s, ok := c.Get(CtxSubject).(string); ok && s != "" {
		return s
	}
	return "anon"
}

// Role returns the caller's role or the empty string.
func Role(c echo.Context) string {
	r, _ := c.Get(CtxRole).(string)
	return r
}
