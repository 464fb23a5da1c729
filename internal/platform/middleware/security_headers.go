package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets security response headers on every request. Paths
// under one of the documentPrefixes serve user documents and rendered
// reports, so they get a CSP that lets browsers display them inline.
func SecurityHeaders(documentPrefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// responses may carry patient data
			h.Set("Cache-Control", "no-store")

			csp := "default-src 'none'; frame-ancestors 'none'"
			path := c.Request().URL.Path
			for _, p := range documentPrefixes {
				if strings.HasPrefix(path, p) {
					csp = "default-src 'none'; object-src 'self'; img-src 'self'; frame-ancestors 'self'"
					break
				}
			}
			h.Set("Content-Security-Policy", csp)

			return next(c)
		}
	}
}
