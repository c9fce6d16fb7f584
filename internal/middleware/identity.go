package middleware

import "github.com/labstack/echo/v4"

// subjectOf returns the authenticated subject, or "anon" before AdminAuth
// has run.
func subjectOf(c echo.Context) string {
	if s, ok := c.Get(CtxSubject).(string); ok && s != "" {
		return s
	}
	return "anon"
}

// clientIP is echo's RealIP with a placeholder for empty values.
func clientIP(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}
