// Package provider implements the typed client for the remote mailbox API:
// watch registration, incremental deltas, message fetch and send. It owns
// credential refresh; callers never see OAuth details.
package provider

import (
	"context"
	"time"

	"github.com/relaypost/relaypost-backend/internal/models"
)

// WatchInfo is the result of registering (or renewing) a watch
type WatchInfo struct {
	Cursor    string
	ExpiresAt time.Time
}

// MessageRef identifies one message inside a delta
type MessageRef struct {
	ID       string
	ThreadID string
}

// Delta is the set of changes since a cursor, in provider order
type Delta struct {
	Added     []MessageRef
	NewCursor string
}

// Message is a fully resolved provider message
type Message struct {
	ProviderMessageID string
	ThreadID          string
	FromEmail         string
	FromName          string
	To                []models.Recipient
	Subject           string
	Snippet           string
	BodyText          string
	BodyHTML          string
	MessageIDHeader   string
	InReplyTo         string
	References        string
	Attachments       []models.AttachmentMeta
	ReceivedAt        time.Time
}

// OutgoingAttachment is one attachment of a message to send
type OutgoingAttachment struct {
	Filename    string
	Content     []byte
	ContentType string
}

// OutgoingMessage describes a message to compose and submit
type OutgoingMessage struct {
	FromEmail   string
	FromName    string
	To          []models.Recipient
	Cc          []models.Recipient
	Bcc         []models.Recipient
	ReplyTo     string
	Subject     string
	Text        string
	HTML        string
	Attachments []OutgoingAttachment
	InReplyTo   string
	References  string
	ThreadID    string
}

// SendResult identifies the submitted message
type SendResult struct {
	ProviderMessageID string
	ThreadID          string
}

// Client defines the provider API surface the rest of the system depends on
type Client interface {
	// RegisterWatch starts or replaces the watch on a mailbox. Calling it
	// again before expiry replaces the prior watch server-side.
	RegisterWatch(ctx context.Context, conn *models.MailboxConnection) (*WatchInfo, error)

	// CancelWatch stops the watch on a mailbox
	CancelWatch(ctx context.Context, conn *models.MailboxConnection) error

	// FetchDelta returns the changes since the given cursor. Fails with an
	// error matching apperrors.ErrInvalidCursor when the provider has
	// garbage-collected the cursor's history.
	FetchDelta(ctx context.Context, conn *models.MailboxConnection, cursor string) (*Delta, error)

	// FetchMessage resolves one message reference to a full message
	FetchMessage(ctx context.Context, conn *models.MailboxConnection, ref MessageRef) (*Message, error)

	// SendMessage composes the wire-format message and submits it
	SendMessage(ctx context.Context, conn *models.MailboxConnection, msg *OutgoingMessage) (*SendResult, error)
}
