// Package services contains the notification pipeline: decoding inbound
// change notifications, resolving them into new messages via incremental
// sync, fanning events out to webhook subscribers, and keeping mailbox
// watches alive.
package services

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/relaypost/relaypost-backend/internal/errors"
)

// Notification is the provider-agnostic result of decoding one inbound
// change notification
type Notification struct {
	MailboxAddress string
	// CursorHint is the provider's cursor position at publish time; used to
	// bootstrap a mailbox with no stored cursor and to recover from a stale
	// one
	CursorHint  string
	EnvelopeID  string
	PublishTime time.Time
}

// pushEnvelope is the wire shape of the provider's push delivery
type pushEnvelope struct {
	Message struct {
		Data        string    `json:"data"`
		MessageID   string    `json:"messageId"`
		PublishTime time.Time `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// notificationData is the JSON carried base64-encoded in the envelope.
// The cursor hint arrives as either a JSON number or a string depending on
// the provider's client library.
type notificationData struct {
	EmailAddress string      `json:"emailAddress"`
	CursorHint   json.Number `json:"historyId"`
}

// DecodeNotification parses an inbound push envelope. All failure modes wrap
// apperrors.ErrInvalidInput so the HTTP layer can answer 400 without
// inspecting details.
func DecodeNotification(body []byte) (*Notification, error) {
	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("malformed notification envelope: %w", apperrors.ErrInvalidInput)
	}
	if envelope.Message.Data == "" {
		return nil, fmt.Errorf("notification envelope has no message data: %w", apperrors.ErrInvalidInput)
	}

	decoded, err := decodeBase64(envelope.Message.Data)
	if err != nil {
		return nil, fmt.Errorf("notification data is not valid base64: %w", apperrors.ErrInvalidInput)
	}

	var data notificationData
	if err := json.Unmarshal(decoded, &data); err != nil {
		return nil, fmt.Errorf("malformed notification data: %w", apperrors.ErrInvalidInput)
	}
	if data.EmailAddress == "" {
		return nil, fmt.Errorf("notification data has no mailbox address: %w", apperrors.ErrInvalidInput)
	}

	return &Notification{
		MailboxAddress: data.EmailAddress,
		CursorHint:     data.CursorHint.String(),
		EnvelopeID:     envelope.Message.MessageID,
		PublishTime:    envelope.Message.PublishTime,
	}, nil
}

// decodeBase64 accepts both standard and URL-safe alphabets, padded or not
func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if decoded, err := enc.DecodeString(s); err == nil {
			return decoded, nil
		}
	}
	return nil, fmt.Errorf("invalid base64 payload")
}
