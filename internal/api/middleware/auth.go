// Package middleware provides HTTP middleware for the relaypost API.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
)

// APIKeyAuth validates the API key from the Authorization header.
// Uses constant-time comparison to prevent timing attacks.
func APIKeyAuth(apiKey string, logger *slog.Logger) echo.MiddlewareFunc {
	if apiKey == "" && logger != nil {
		logger.Warn("API_KEY not set - API is UNSECURED")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()

			// Skip if API_KEY not configured (development mode)
			if apiKey == "" {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				if logger != nil {
					logger.Warn("missing authorization header",
						slog.String("ip", c.RealIP()),
						slog.String("path", path))
				}
				return echo.NewHTTPError(401, map[string]string{
					"error": "missing authorization header",
					"code":  "UNAUTHORIZED",
				})
			}

			// Extract token from "Bearer <token>" format
			token := strings.TrimPrefix(authHeader, "Bearer ")
			token = strings.TrimSpace(token)

			// Use constant-time comparison to prevent timing attacks
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				if logger != nil {
					logger.Warn("invalid API key attempt",
						slog.String("ip", c.RealIP()),
						slog.String("path", path))
				}
				return echo.NewHTTPError(401, map[string]string{
					"error": "invalid API key",
					"code":  "UNAUTHORIZED",
				})
			}

			return next(c)
		}
	}
}

// BearerSecret validates a single shared secret from the Authorization
// header, for endpoints hit by trusted schedulers rather than API clients.
func BearerSecret(secret string, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				if logger != nil {
					logger.Warn("scheduler secret not set, rejecting request",
						slog.String("path", c.Path()))
				}
				return echo.NewHTTPError(401, map[string]string{
					"error": "endpoint not configured",
					"code":  "UNAUTHORIZED",
				})
			}

			token := strings.TrimSpace(strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer "))
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				if logger != nil {
					logger.Warn("invalid scheduler secret",
						slog.String("ip", c.RealIP()),
						slog.String("path", c.Path()))
				}
				return echo.NewHTTPError(401, map[string]string{
					"error": "invalid credentials",
					"code":  "UNAUTHORIZED",
				})
			}

			return next(c)
		}
	}
}
