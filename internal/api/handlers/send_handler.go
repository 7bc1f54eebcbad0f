package handlers

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/relaypost/relaypost-backend/internal/api/response"
	apperrors "github.com/relaypost/relaypost-backend/internal/errors"
	"github.com/relaypost/relaypost-backend/internal/models"
	"github.com/relaypost/relaypost-backend/internal/provider"
	"github.com/relaypost/relaypost-backend/internal/repository"
	"github.com/relaypost/relaypost-backend/internal/services"
	"github.com/relaypost/relaypost-backend/internal/validator"
)

// SendHandler handles outbound message HTTP requests
type SendHandler struct {
	connections repository.ConnectionRepository
	emailLogs   repository.EmailLogRepository
	provider    provider.Client
	dispatcher  services.EventDispatcher
	logger      *slog.Logger
}

// NewSendHandler creates a new SendHandler
func NewSendHandler(
	connections repository.ConnectionRepository,
	emailLogs repository.EmailLogRepository,
	providerClient provider.Client,
	dispatcher services.EventDispatcher,
	logger *slog.Logger,
) *SendHandler {
	return &SendHandler{
		connections: connections,
		emailLogs:   emailLogs,
		provider:    providerClient,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// SendAddress is one addressee of an outbound message
type SendAddress struct {
	Email string `json:"email" validate:"required"`
	Name  string `json:"name"`
}

// SendAttachment is one attachment of an outbound message, content base64
type SendAttachment struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"content_type"`
	Content     string `json:"content" validate:"required"`
}

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	From        string           `json:"from" validate:"required"`
	FromName    string           `json:"from_name"`
	To          []SendAddress    `json:"to" validate:"required"`
	Cc          []SendAddress    `json:"cc"`
	Bcc         []SendAddress    `json:"bcc"`
	ReplyTo     string           `json:"reply_to"`
	Subject     string           `json:"subject"`
	Text        string           `json:"text"`
	HTML        string           `json:"html"`
	Attachments []SendAttachment `json:"attachments"`
	InReplyTo   string           `json:"in_reply_to"`
	References  string           `json:"references"`
	ThreadID    string           `json:"thread_id"`
}

// SendMessageResponse identifies the submitted message
type SendMessageResponse struct {
	ID                uint   `json:"id"`
	ProviderMessageID string `json:"provider_message_id"`
	ThreadID          string `json:"thread_id,omitempty"`
}

// Send handles POST /api/messages/send
func (h *SendHandler) Send(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if err := validator.ValidateEmail(req.From); err != nil {
		return response.BadRequest(c, "from must be a valid email address")
	}
	if len(req.To) == 0 {
		return response.BadRequest(c, "at least one recipient is required")
	}
	for _, to := range req.To {
		if err := validator.ValidateEmail(to.Email); err != nil {
			return response.BadRequest(c, "recipient "+to.Email+" is not a valid email address")
		}
	}
	if req.Text == "" && req.HTML == "" {
		return response.BadRequest(c, "message needs a text or html body")
	}

	conn, err := h.connections.GetByAddress(c.Request().Context(), req.From)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "no connection for sender mailbox")
		}
		return response.InternalError(c, "failed to get connection")
	}
	if !conn.IsActive {
		return response.Error(c, apperrors.ErrConnectionInactive)
	}

	outgoing, err := buildOutgoing(&req)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	result, err := h.provider.SendMessage(c.Request().Context(), conn, outgoing)
	if err != nil {
		h.logger.Error("send failed",
			slog.String("mailbox", conn.EmailAddress),
			slog.Any("error", err))
		return response.Error(c, err)
	}

	log := sentEmailLog(conn, &req, result)
	if err := h.emailLogs.Create(c.Request().Context(), log); err != nil {
		// The message is already out. Surfacing an error now would make
		// clients retry and double-send, so only log the gap.
		if !errors.Is(err, repository.ErrDuplicateEntry) {
			h.logger.Error("failed to record sent message",
				slog.String("mailbox", conn.EmailAddress),
				slog.String("provider_message_id", result.ProviderMessageID),
				slog.Any("error", err))
		}
	} else if h.dispatcher != nil {
		h.dispatcher.Deliver(c.Request().Context(), conn, models.EventEmailSent, log)
	}

	return response.Created(c, SendMessageResponse{
		ID:                log.ID,
		ProviderMessageID: result.ProviderMessageID,
		ThreadID:          result.ThreadID,
	})
}

func buildOutgoing(req *SendMessageRequest) (*provider.OutgoingMessage, error) {
	outgoing := &provider.OutgoingMessage{
		FromEmail:  req.From,
		FromName:   req.FromName,
		To:         toRecipients(req.To),
		Cc:         toRecipients(req.Cc),
		Bcc:        toRecipients(req.Bcc),
		ReplyTo:    req.ReplyTo,
		Subject:    req.Subject,
		Text:       req.Text,
		HTML:       req.HTML,
		InReplyTo:  req.InReplyTo,
		References: req.References,
		ThreadID:   req.ThreadID,
	}

	for _, att := range req.Attachments {
		if att.Filename == "" {
			return nil, errors.New("attachment filename is required")
		}
		content, err := base64.StdEncoding.DecodeString(att.Content)
		if err != nil {
			return nil, errors.New("attachment " + att.Filename + " content is not valid base64")
		}
		outgoing.Attachments = append(outgoing.Attachments, provider.OutgoingAttachment{
			Filename:    att.Filename,
			Content:     content,
			ContentType: att.ContentType,
		})
	}

	return outgoing, nil
}

func toRecipients(addrs []SendAddress) []models.Recipient {
	if len(addrs) == 0 {
		return nil
	}
	recipients := make([]models.Recipient, 0, len(addrs))
	for _, a := range addrs {
		recipients = append(recipients, models.Recipient{Email: a.Email, Name: a.Name})
	}
	return recipients
}

func sentEmailLog(conn *models.MailboxConnection, req *SendMessageRequest, result *provider.SendResult) *models.EmailLog {
	log := &models.EmailLog{
		ConnectionID:      conn.ID,
		ProviderMessageID: result.ProviderMessageID,
		ThreadID:          result.ThreadID,
		Direction:         models.DirectionSent,
		FromEmail:         req.From,
		FromName:          req.FromName,
		ToRecipients:      toRecipients(req.To),
		Subject:           req.Subject,
		BodyText:          req.Text,
		BodyHTML:          req.HTML,
		InReplyTo:         req.InReplyTo,
		ReferencesHeader:  req.References,
		ReceivedAt:        time.Now().UTC(),
	}

	for _, att := range req.Attachments {
		size := int64(base64.StdEncoding.DecodedLen(len(att.Content)))
		log.Attachments = append(log.Attachments, models.AttachmentMeta{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        size,
		})
	}

	return log
}
