package services

import (
	"context"
	"errors"
	"log/slog"

	apperrors "github.com/relaypost/relaypost-backend/internal/errors"
	"github.com/relaypost/relaypost-backend/internal/models"
	"github.com/relaypost/relaypost-backend/internal/provider"
	"github.com/relaypost/relaypost-backend/internal/repository"
)

// EventDispatcher delivers one recorded message event to all interested
// subscribers. Implementations never propagate delivery failures.
type EventDispatcher interface {
	Deliver(ctx context.Context, conn *models.MailboxConnection, eventType string, log *models.EmailLog)
}

// MessageBroadcaster pushes newly observed messages to connected realtime
// clients. Optional; a nil broadcaster disables the push.
type MessageBroadcaster interface {
	BroadcastNewMessage(connectionID uint, log *models.EmailLog)
}

// SyncEngine resolves inbound notifications into an ordered, deduplicated
// stream of new messages. The email log's uniqueness constraint makes the
// whole pass idempotent under redelivery: the cursor is only persisted after
// the full delta was processed, so a crash mid-delta reprocesses the delta
// and the constraint suppresses the duplicates.
type SyncEngine struct {
	connections repository.ConnectionRepository
	emailLogs   repository.EmailLogRepository
	provider    provider.Client
	dispatcher  EventDispatcher
	broadcaster MessageBroadcaster
	logger      *slog.Logger
}

// NewSyncEngine creates a new SyncEngine
func NewSyncEngine(
	connections repository.ConnectionRepository,
	emailLogs repository.EmailLogRepository,
	providerClient provider.Client,
	dispatcher EventDispatcher,
	broadcaster MessageBroadcaster,
	logger *slog.Logger,
) *SyncEngine {
	return &SyncEngine{
		connections: connections,
		emailLogs:   emailLogs,
		provider:    providerClient,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// ProcessNotification runs one sync pass for an inbound notification.
// A nil return includes the discard cases (unknown or inactive mailbox):
// those notifications are unprocessable forever and acknowledging them stops
// the provider from redelivering indefinitely.
func (e *SyncEngine) ProcessNotification(ctx context.Context, n *Notification) error {
	conn, err := e.connections.GetByAddress(ctx, n.MailboxAddress)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			e.logger.Info("discarding notification for unknown mailbox",
				slog.String("mailbox", n.MailboxAddress))
			return nil
		}
		return apperrors.Wrap(err, "failed to load mailbox connection")
	}

	if !conn.IsActive {
		e.logger.Info("discarding notification for inactive mailbox",
			slog.String("mailbox", n.MailboxAddress))
		return nil
	}

	// First-run bootstrap: no stored cursor yet, start from the hint
	cursor := conn.SyncCursor
	bootstrapped := false
	if cursor == "" {
		cursor = n.CursorHint
		bootstrapped = true
	}

	delta, err := e.provider.FetchDelta(ctx, conn, cursor)
	if err != nil && apperrors.IsInvalidCursor(err) && !bootstrapped && n.CursorHint != "" {
		// The provider garbage-collected our cursor's history. Restart from
		// the notification's hint; messages between the stale cursor and the
		// hint are lost. Documented lossy-recovery policy.
		e.logger.Warn("stored cursor rejected by provider, bootstrapping from notification hint",
			slog.String("mailbox", n.MailboxAddress),
			slog.String("stale_cursor", cursor),
			slog.String("cursor_hint", n.CursorHint))
		cursor = n.CursorHint
		delta, err = e.provider.FetchDelta(ctx, conn, cursor)
	}
	if err != nil {
		return apperrors.Wrap(err, "failed to fetch delta")
	}

	processed := 0
	for _, ref := range delta.Added {
		ok, err := e.processMessage(ctx, conn, ref)
		if err != nil {
			return err
		}
		if ok {
			processed++
		}
	}

	// Advance the cursor only after the whole delta was handled
	if delta.NewCursor != "" && delta.NewCursor != conn.SyncCursor {
		if err := e.connections.UpdateCursor(ctx, conn.ID, delta.NewCursor); err != nil {
			return apperrors.Wrap(err, "failed to persist cursor")
		}
	}

	e.logger.Info("notification processed",
		slog.String("mailbox", n.MailboxAddress),
		slog.Int("delta_size", len(delta.Added)),
		slog.Int("new_messages", processed),
		slog.String("cursor", delta.NewCursor))
	return nil
}

// processMessage handles one message reference from a delta. Returns true
// when a new message was recorded and dispatched, false when it was skipped
// (already recorded, or its fetch failed).
func (e *SyncEngine) processMessage(ctx context.Context, conn *models.MailboxConnection, ref provider.MessageRef) (bool, error) {
	exists, err := e.emailLogs.Exists(ctx, conn.ID, ref.ID)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check email log")
	}
	if exists {
		e.logger.Debug("skipping already-recorded message",
			slog.String("mailbox", conn.EmailAddress),
			slog.String("provider_message_id", ref.ID))
		return false, nil
	}

	msg, err := e.provider.FetchMessage(ctx, conn, ref)
	if err != nil {
		// Not retried within this pass; the reference only comes back if a
		// future delta re-surfaces it
		e.logger.Error("failed to fetch message, skipping",
			slog.String("mailbox", conn.EmailAddress),
			slog.String("provider_message_id", ref.ID),
			slog.Any("error", err))
		return false, nil
	}

	log := emailLogFromMessage(conn.ID, msg)
	if err := e.emailLogs.Create(ctx, log); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// A concurrent pass for the same mailbox won the race; the
			// constraint did its job
			e.logger.Debug("message recorded by concurrent pass, skipping",
				slog.String("mailbox", conn.EmailAddress),
				slog.String("provider_message_id", ref.ID))
			return false, nil
		}
		return false, apperrors.Wrap(err, "failed to record message")
	}

	e.dispatcher.Deliver(ctx, conn, models.EventEmailReceived, log)
	if e.broadcaster != nil {
		e.broadcaster.BroadcastNewMessage(conn.ID, log)
	}
	return true, nil
}

// emailLogFromMessage maps a resolved provider message onto an email log row
func emailLogFromMessage(connectionID uint, msg *provider.Message) *models.EmailLog {
	return &models.EmailLog{
		ConnectionID:      connectionID,
		ProviderMessageID: msg.ProviderMessageID,
		ThreadID:          msg.ThreadID,
		Direction:         models.DirectionReceived,
		FromEmail:         msg.FromEmail,
		FromName:          msg.FromName,
		ToRecipients:      msg.To,
		Subject:           msg.Subject,
		Snippet:           msg.Snippet,
		BodyText:          msg.BodyText,
		BodyHTML:          msg.BodyHTML,
		MessageIDHeader:   msg.MessageIDHeader,
		InReplyTo:         msg.InReplyTo,
		ReferencesHeader:  msg.References,
		Attachments:       msg.Attachments,
		ReceivedAt:        msg.ReceivedAt,
	}
}
