package handlers

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/relaypost/relaypost-backend/internal/api/response"
	"github.com/relaypost/relaypost-backend/internal/repository"
	"github.com/relaypost/relaypost-backend/internal/validator"
)

// MessageHandler handles email log read HTTP requests
type MessageHandler struct {
	emailLogs   repository.EmailLogRepository
	connections repository.ConnectionRepository
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(emailLogs repository.EmailLogRepository, connections repository.ConnectionRepository) *MessageHandler {
	return &MessageHandler{
		emailLogs:   emailLogs,
		connections: connections,
	}
}

// List handles GET /api/messages
func (h *MessageHandler) List(c echo.Context) error {
	address := c.QueryParam("mailbox_address")
	if address == "" {
		return response.BadRequest(c, "mailbox_address is required")
	}

	conn, err := h.connections.GetByAddress(c.Request().Context(), address)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "mailbox connection not found")
		}
		return response.InternalError(c, "failed to get connection")
	}

	limit := 0
	offset := 0
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}
	if o := c.QueryParam("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil {
			offset = parsed
		}
	}
	limit, offset = validator.ValidatePagination(limit, offset)

	logs, total, err := h.emailLogs.ListByConnection(c.Request().Context(), conn.ID, limit, offset)
	if err != nil {
		return response.InternalError(c, "failed to list messages")
	}

	return response.Paginated(c, logs, total, limit, offset)
}

// Get handles GET /api/messages/:id
func (h *MessageHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid message ID")
	}

	log, err := h.emailLogs.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "message not found")
		}
		return response.InternalError(c, "failed to get message")
	}

	return response.Success(c, log)
}

// Thread handles GET /api/threads/:thread_id. Messages come back in
// chronological order, both received and sent.
func (h *MessageHandler) Thread(c echo.Context) error {
	threadID := c.Param("thread_id")
	if threadID == "" {
		return response.BadRequest(c, "thread_id is required")
	}

	address := c.QueryParam("mailbox_address")
	if address == "" {
		return response.BadRequest(c, "mailbox_address is required")
	}

	conn, err := h.connections.GetByAddress(c.Request().Context(), address)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "mailbox connection not found")
		}
		return response.InternalError(c, "failed to get connection")
	}

	logs, err := h.emailLogs.ListByThread(c.Request().Context(), conn.ID, threadID)
	if err != nil {
		return response.InternalError(c, "failed to list thread messages")
	}

	return response.Success(c, logs)
}
