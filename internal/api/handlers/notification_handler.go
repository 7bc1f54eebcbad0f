package handlers

import (
	"context"
	"io"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/relaypost/relaypost-backend/internal/api/response"
	apperrors "github.com/relaypost/relaypost-backend/internal/errors"
	"github.com/relaypost/relaypost-backend/internal/services"
)

// Inbound push bodies are tiny; anything larger is not a notification.
const maxNotificationBody = 64 * 1024

// NotificationProcessor resolves a decoded notification into new messages
type NotificationProcessor interface {
	ProcessNotification(ctx context.Context, n *services.Notification) error
}

// NotificationHandler receives provider push notifications
type NotificationHandler struct {
	processor NotificationProcessor
	logger    *slog.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(processor NotificationProcessor, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{processor: processor, logger: logger}
}

// Receive handles POST /notifications.
//
// Only malformed envelopes get a 400. Processing failures are acknowledged
// with 200 anyway: the cursor is not advanced on failure, so the missed
// changes are picked up by the next notification, and a NACK would only make
// the provider hammer us with redeliveries of a notification we already
// cannot process.
func (h *NotificationHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxNotificationBody))
	if err != nil {
		return response.BadRequest(c, "failed to read request body")
	}

	notification, err := services.DecodeNotification(body)
	if err != nil {
		if apperrors.IsInvalidInput(err) {
			return response.BadRequest(c, err.Error())
		}
		return response.InternalError(c, "failed to decode notification")
	}

	if err := h.processor.ProcessNotification(c.Request().Context(), notification); err != nil {
		h.logger.Error("notification processing failed",
			slog.String("mailbox", notification.MailboxAddress),
			slog.String("envelope_id", notification.EnvelopeID),
			slog.Any("error", err))
	}

	return response.Success(c, map[string]string{"status": "accepted"})
}
