package handlers

import (
	"log/slog"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/relaypost/relaypost-backend/internal/api/response"
	"github.com/relaypost/relaypost-backend/internal/websocket"
)

// WSHandler upgrades HTTP requests to WebSocket connections
type WSHandler struct {
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(hub *websocket.Hub, upgrader gorillaws.Upgrader, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:      hub,
		upgrader: upgrader,
		logger:   logger,
	}
}

// Serve handles GET /api/ws. Clients subscribe to connections with
// {"type":"subscribe","connection_id":N} after upgrading.
func (h *WSHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return response.BadRequest(c, "websocket upgrade failed")
	}

	client := websocket.NewClient(h.hub, conn, h.logger)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	return nil
}
