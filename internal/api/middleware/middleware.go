package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RequestLogger logs each request with latency and outcome. Server errors log
// at Error and client errors at Warn so failed notification deliveries and
// rejected envelopes stand out in the stream. The mailbox a request concerns
// is attached when it can be read from the route.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
			}
			if mailbox := requestMailbox(c); mailbox != "" {
				attrs = append(attrs, slog.String("mailbox", mailbox))
			}

			switch {
			case res.Status >= 500:
				logger.Error("request", attrs...)
			case res.Status >= 400:
				logger.Warn("request", attrs...)
			default:
				logger.Info("request", attrs...)
			}

			return err
		}
	}
}

// requestMailbox pulls the mailbox address a request concerns, either from
// the watch route param or the message listing query
func requestMailbox(c echo.Context) string {
	if address := c.Param("address"); address != "" {
		return address
	}
	return c.QueryParam("mailbox_address")
}

// CORS restricts cross-origin access to the configured origins. With none
// configured all origins are allowed (development mode).
func CORS(allowedOrigins []string) echo.MiddlewareFunc {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.PATCH, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	})
}

// Recover returns a middleware that recovers from panics
func Recover() echo.MiddlewareFunc {
	return middleware.Recover()
}
