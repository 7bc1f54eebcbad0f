package provider

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jhillyerd/enmime"
	"github.com/relaypost/relaypost-backend/internal/models"
)

const snippetMaxLen = 200

// parseRawMessage turns a raw RFC 2822 message into a resolved Message.
// Header parse failures on individual addresses degrade to the raw header
// value rather than failing the whole message.
func parseRawMessage(raw []byte, providerMessageID, threadID string, receivedAt time.Time) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIME envelope: %w", err)
	}

	msg := &Message{
		ProviderMessageID: providerMessageID,
		ThreadID:          threadID,
		Subject:           env.GetHeader("Subject"),
		BodyText:          env.Text,
		BodyHTML:          env.HTML,
		MessageIDHeader:   env.GetHeader("Message-Id"),
		InReplyTo:         env.GetHeader("In-Reply-To"),
		References:        env.GetHeader("References"),
		Snippet:           makeSnippet(env.Text),
		ReceivedAt:        receivedAt,
	}

	if from := env.GetHeader("From"); from != "" {
		if addr, err := mail.ParseAddress(from); err == nil {
			msg.FromEmail = addr.Address
			msg.FromName = addr.Name
		} else {
			msg.FromEmail = from
		}
	}

	if to := env.GetHeader("To"); to != "" {
		if addrs, err := mail.ParseAddressList(to); err == nil {
			for _, a := range addrs {
				msg.To = append(msg.To, models.Recipient{Email: a.Address, Name: a.Name})
			}
		} else {
			msg.To = append(msg.To, models.Recipient{Email: to})
		}
	}

	if msg.ReceivedAt.IsZero() {
		if date, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
			msg.ReceivedAt = date.UTC()
		}
	}

	for _, part := range env.Attachments {
		msg.Attachments = append(msg.Attachments, models.AttachmentMeta{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        int64(len(part.Content)),
		})
	}

	return msg, nil
}

// buildRawMessage composes the RFC 2822 wire format for an outgoing message.
// Threading headers are passed through untouched so providers can group the
// message into an existing conversation.
func buildRawMessage(msg *OutgoingMessage) ([]byte, error) {
	if msg.FromEmail == "" {
		return nil, fmt.Errorf("from address is required")
	}
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}

	b := enmime.Builder().
		From(msg.FromName, msg.FromEmail).
		Subject(msg.Subject)

	for _, r := range msg.To {
		b = b.To(r.Name, r.Email)
	}
	for _, r := range msg.Cc {
		b = b.CC(r.Name, r.Email)
	}
	for _, r := range msg.Bcc {
		b = b.BCC(r.Name, r.Email)
	}
	if msg.ReplyTo != "" {
		b = b.ReplyTo("", msg.ReplyTo)
	}

	if msg.Text != "" {
		b = b.Text([]byte(msg.Text))
	}
	if msg.HTML != "" {
		b = b.HTML([]byte(msg.HTML))
	}
	if msg.InReplyTo != "" {
		b = b.Header("In-Reply-To", msg.InReplyTo)
	}
	if msg.References != "" {
		b = b.Header("References", msg.References)
	}

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		b = b.AddAttachment(att.Content, contentType, att.Filename)
	}

	part, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build MIME message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode MIME message: %w", err)
	}
	return buf.Bytes(), nil
}

// makeSnippet collapses whitespace and truncates the text body for list
// views. Truncation is on a rune boundary so multi-byte text stays valid.
func makeSnippet(text string) string {
	snippet := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(snippet) > snippetMaxLen {
		snippet = string([]rune(snippet)[:snippetMaxLen])
	}
	return snippet
}
