package websocket

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// NewSecureUpgrader creates a WebSocket upgrader that only accepts the given
// origins. Same-origin requests (no Origin header) are always allowed. With
// no origins configured, only localhost development clients get through.
func NewSecureUpgrader(allowedOrigins []string, logger *slog.Logger) websocket.Upgrader {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			for _, allowed := range allowedOrigins {
				if allowed == origin {
					return true
				}
			}

			if logger != nil {
				logger.Warn("rejected websocket connection",
					slog.String("origin", origin),
					slog.String("remote_ip", r.RemoteAddr))
			}
			return false
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// DefaultUpgrader returns an upgrader that allows all origins (for development)
func DefaultUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}
