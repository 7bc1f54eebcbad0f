package handlers

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/relaypost/relaypost-backend/internal/api/response"
	apperrors "github.com/relaypost/relaypost-backend/internal/errors"
	"github.com/relaypost/relaypost-backend/internal/models"
	"github.com/relaypost/relaypost-backend/internal/repository"
	"github.com/relaypost/relaypost-backend/internal/validator"
)

// ConnectionHandler handles mailbox connection HTTP requests
type ConnectionHandler struct {
	connections repository.ConnectionRepository
	watches     WatchService
	logger      *slog.Logger
}

// NewConnectionHandler creates a new ConnectionHandler
func NewConnectionHandler(connections repository.ConnectionRepository, watches WatchService, logger *slog.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		connections: connections,
		watches:     watches,
		logger:      logger,
	}
}

// CreateConnectionRequest represents the request body for linking a mailbox
type CreateConnectionRequest struct {
	OwnerID      string     `json:"owner_id" validate:"required"`
	EmailAddress string     `json:"email_address" validate:"required"`
	AccessToken  string     `json:"access_token" validate:"required"`
	RefreshToken string     `json:"refresh_token"`
	TokenExpiry  *time.Time `json:"token_expiry"`
}

// Create handles POST /api/connections
func (h *ConnectionHandler) Create(c echo.Context) error {
	var req CreateConnectionRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if req.OwnerID == "" {
		return response.BadRequest(c, "owner_id is required")
	}
	if err := validator.ValidateEmail(req.EmailAddress); err != nil {
		return response.BadRequest(c, "email_address must be a valid email address")
	}
	if req.AccessToken == "" {
		return response.BadRequest(c, "access_token is required")
	}

	conn := &models.MailboxConnection{
		OwnerID:      req.OwnerID,
		EmailAddress: req.EmailAddress,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		IsActive:     true,
	}
	if req.TokenExpiry != nil {
		conn.TokenExpiry = *req.TokenExpiry
	}

	if err := h.connections.Create(c.Request().Context(), conn); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return response.Conflict(c, "mailbox is already linked")
		}
		return response.InternalError(c, "failed to create connection")
	}

	// Start watching the mailbox right away. A registration failure does not
	// fail the link: the row exists, and POST /api/watch or the renewal loop
	// can establish the watch later.
	if watched, err := h.watches.StartWatch(c.Request().Context(), conn.EmailAddress); err != nil {
		h.logger.Warn("watch not started at link time",
			slog.String("mailbox", conn.EmailAddress),
			slog.Any("error", err))
	} else {
		conn = watched
	}

	return response.Created(c, conn)
}

// List handles GET /api/connections
func (h *ConnectionHandler) List(c echo.Context) error {
	connections, err := h.connections.ListActive(c.Request().Context())
	if err != nil {
		return response.InternalError(c, "failed to list connections")
	}

	return response.Success(c, connections)
}

// Get handles GET /api/connections/:id
func (h *ConnectionHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid connection ID")
	}

	conn, err := h.connections.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "connection not found")
		}
		return response.InternalError(c, "failed to get connection")
	}

	return response.Success(c, conn)
}

// Delete handles DELETE /api/connections/:id. The connection is unlinked:
// its watch is cancelled and the row is deactivated, keeping the email log.
func (h *ConnectionHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid connection ID")
	}

	conn, err := h.connections.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "connection not found")
		}
		return response.InternalError(c, "failed to get connection")
	}

	if err := h.watches.Unlink(c.Request().Context(), conn.EmailAddress); err != nil {
		if errors.Is(err, apperrors.ErrConnectionNotFound) {
			return response.NotFound(c, "connection not found")
		}
		return response.Error(c, err)
	}

	return response.NoContent(c)
}
