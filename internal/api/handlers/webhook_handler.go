package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/relaypost/relaypost-backend/internal/api/response"
	"github.com/relaypost/relaypost-backend/internal/models"
	"github.com/relaypost/relaypost-backend/internal/repository"
	"github.com/relaypost/relaypost-backend/internal/validator"
)

var knownEventTypes = []string{models.EventEmailReceived, models.EventEmailSent}

// WebhookHandler handles webhook subscription HTTP requests
type WebhookHandler struct {
	webhooks    repository.WebhookRepository
	connections repository.ConnectionRepository
	attempts    repository.DeliveryAttemptRepository
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(
	webhooks repository.WebhookRepository,
	connections repository.ConnectionRepository,
	attempts repository.DeliveryAttemptRepository,
) *WebhookHandler {
	return &WebhookHandler{
		webhooks:    webhooks,
		connections: connections,
		attempts:    attempts,
	}
}

// Secrets shorter than this are too weak to sign with
const minSecretLength = 16

// CreateWebhookRequest represents the request body for creating a webhook
type CreateWebhookRequest struct {
	ConnectionID uint     `json:"connection_id" validate:"required"`
	TargetURL    string   `json:"target_url" validate:"required"`
	EventTypes   []string `json:"event_types"`
	Secret       string   `json:"secret"`
}

// Create handles POST /api/webhooks. A signing secret is generated
// server-side when the caller does not supply one, and is returned once in
// the created response.
func (h *WebhookHandler) Create(c echo.Context) error {
	var req CreateWebhookRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if req.ConnectionID == 0 {
		return response.BadRequest(c, "connection_id is required")
	}
	if err := validator.ValidateWebhookURL(req.TargetURL); err != nil {
		return response.BadRequest(c, "target_url must be a valid http or https URL")
	}
	if len(req.EventTypes) == 0 {
		req.EventTypes = []string{models.EventEmailReceived}
	}
	if err := validator.ValidateEventTypes(req.EventTypes, knownEventTypes); err != nil {
		return response.BadRequest(c, "event_types contains an unknown event type")
	}

	if _, err := h.connections.GetByID(c.Request().Context(), req.ConnectionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "connection not found")
		}
		return response.InternalError(c, "failed to get connection")
	}

	secret := req.Secret
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return response.InternalError(c, "failed to generate webhook secret")
		}
		secret = generated
	} else if len(secret) < minSecretLength {
		return response.BadRequest(c, "secret must be at least 16 characters")
	}

	webhook := &models.Webhook{
		ConnectionID: req.ConnectionID,
		TargetURL:    req.TargetURL,
		Secret:       secret,
		EventTypes:   models.EventTypeList(req.EventTypes),
		IsActive:     true,
	}

	if err := h.webhooks.Create(c.Request().Context(), webhook); err != nil {
		return response.InternalError(c, "failed to create webhook")
	}

	return response.Created(c, webhook)
}

// List handles GET /api/webhooks
func (h *WebhookHandler) List(c echo.Context) error {
	connIDStr := c.QueryParam("connection_id")
	if connIDStr == "" {
		return response.BadRequest(c, "connection_id is required")
	}

	connID, err := strconv.ParseUint(connIDStr, 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid connection_id")
	}

	webhooks, err := h.webhooks.ListByConnection(c.Request().Context(), uint(connID))
	if err != nil {
		return response.InternalError(c, "failed to list webhooks")
	}

	return response.Success(c, webhooks)
}

// Delete handles DELETE /api/webhooks/:id
func (h *WebhookHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid webhook ID")
	}

	if err := h.webhooks.Delete(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "webhook not found")
		}
		return response.InternalError(c, "failed to delete webhook")
	}

	return response.NoContent(c)
}

// Attempts handles GET /api/webhooks/:id/attempts
func (h *WebhookHandler) Attempts(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid webhook ID")
	}

	if _, err := h.webhooks.GetByID(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "webhook not found")
		}
		return response.InternalError(c, "failed to get webhook")
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

	attempts, total, err := h.attempts.ListByWebhook(c.Request().Context(), uint(id), limit, offset)
	if err != nil {
		return response.InternalError(c, "failed to list delivery attempts")
	}

	return response.Paginated(c, attempts, total, limit, offset)
}

// generateSecret returns a 64-character hex signing secret
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
