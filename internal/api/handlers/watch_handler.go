package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/relaypost/relaypost-backend/internal/api/response"
	apperrors "github.com/relaypost/relaypost-backend/internal/errors"
	"github.com/relaypost/relaypost-backend/internal/models"
	"github.com/relaypost/relaypost-backend/internal/services"
	"github.com/relaypost/relaypost-backend/internal/validator"
)

// WatchService is the watch lifecycle surface the HTTP layer depends on
type WatchService interface {
	StartWatch(ctx context.Context, mailboxAddress string) (*models.MailboxConnection, error)
	StopWatch(ctx context.Context, mailboxAddress string) error
	Unlink(ctx context.Context, mailboxAddress string) error
	RefreshExpiringWatches(ctx context.Context) (*services.RefreshSummary, error)
}

// WatchHandler handles watch lifecycle HTTP requests
type WatchHandler struct {
	watches WatchService
}

// NewWatchHandler creates a new WatchHandler
func NewWatchHandler(watches WatchService) *WatchHandler {
	return &WatchHandler{watches: watches}
}

// StartWatchRequest represents the request body for starting a watch
type StartWatchRequest struct {
	MailboxAddress string `json:"mailbox_address" validate:"required"`
}

// WatchResponse represents the watch state returned to clients
type WatchResponse struct {
	MailboxAddress string `json:"mailbox_address"`
	Cursor         string `json:"cursor"`
	ExpiresAt      string `json:"expires_at"`
}

// Start handles POST /api/watch
func (h *WatchHandler) Start(c echo.Context) error {
	var req StartWatchRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if err := validator.ValidateEmail(req.MailboxAddress); err != nil {
		return response.BadRequest(c, "mailbox_address must be a valid email address")
	}

	conn, err := h.watches.StartWatch(c.Request().Context(), req.MailboxAddress)
	if err != nil {
		if errors.Is(err, apperrors.ErrConnectionNotFound) {
			return response.NotFound(c, "mailbox connection not found")
		}
		return response.Error(c, err)
	}

	resp := WatchResponse{
		MailboxAddress: conn.EmailAddress,
		Cursor:         conn.SyncCursor,
	}
	if conn.WatchExpiresAt != nil {
		resp.ExpiresAt = conn.WatchExpiresAt.UTC().Format(time.RFC3339)
	}

	return response.Success(c, resp)
}

// Stop handles DELETE /api/watch/:address
func (h *WatchHandler) Stop(c echo.Context) error {
	address := c.Param("address")
	if err := validator.ValidateEmail(address); err != nil {
		return response.BadRequest(c, "address must be a valid email address")
	}

	if err := h.watches.StopWatch(c.Request().Context(), address); err != nil {
		if errors.Is(err, apperrors.ErrConnectionNotFound) {
			return response.NotFound(c, "mailbox connection not found")
		}
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"mailbox_address": address})
}

// Refresh handles GET /cron/refresh-watches
func (h *WatchHandler) Refresh(c echo.Context) error {
	summary, err := h.watches.RefreshExpiringWatches(c.Request().Context())
	if err != nil {
		return response.InternalError(c, "watch renewal scan failed")
	}

	return response.Success(c, summary)
}
