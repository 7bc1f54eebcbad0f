package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/relaypost/relaypost-backend/internal/errors"
	"github.com/relaypost/relaypost-backend/internal/models"
)

const (
	defaultTimeout = 30 * time.Second

	// Upstream error bodies are only kept for log context
	maxErrorBodySize = 4 << 10
	maxResponseSize  = 16 << 20
)

// Config holds configuration for the provider client
type Config struct {
	// BaseURL of the provider REST API, without trailing slash
	BaseURL string
	// Topic the provider publishes change notifications to
	Topic string

	OAuthClientID     string
	OAuthClientSecret string
	OAuthTokenURL     string

	Timeout time.Duration
}

// httpClient implements Client over the provider's REST API
type httpClient struct {
	cfg    Config
	http   *http.Client
	tokens *tokenManager
	logger *slog.Logger
}

// NewClient creates a provider client. Refreshed credentials are written
// through the given store before any call proceeds with them.
func NewClient(cfg Config, store CredentialStore, logger *slog.Logger) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &httpClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		tokens: newTokenManager(cfg, store),
		logger: logger,
	}
}

// RegisterWatch starts or replaces the watch on a mailbox
func (c *httpClient) RegisterWatch(ctx context.Context, conn *models.MailboxConnection) (*WatchInfo, error) {
	req := map[string]string{"topic": c.cfg.Topic}
	var resp struct {
		Cursor    string    `json:"cursor"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	path := fmt.Sprintf("/v1/mailboxes/%s/watch", url.PathEscape(conn.EmailAddress))
	if err := c.do(ctx, conn, "register_watch", http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	if resp.Cursor == "" || resp.ExpiresAt.IsZero() {
		return nil, apperrors.NewProviderError("register_watch", conn.EmailAddress, 0,
			"provider returned an incomplete watch response")
	}
	return &WatchInfo{Cursor: resp.Cursor, ExpiresAt: resp.ExpiresAt}, nil
}

// CancelWatch stops the watch on a mailbox. A 404 from the provider means
// there was no watch to cancel and is treated as success.
func (c *httpClient) CancelWatch(ctx context.Context, conn *models.MailboxConnection) error {
	path := fmt.Sprintf("/v1/mailboxes/%s/watch", url.PathEscape(conn.EmailAddress))
	err := c.do(ctx, conn, "cancel_watch", http.MethodDelete, path, nil, nil)
	if err != nil {
		var pe *apperrors.ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return nil
		}
		return err
	}
	return nil
}

// FetchDelta returns the changes since the given cursor
func (c *httpClient) FetchDelta(ctx context.Context, conn *models.MailboxConnection, cursor string) (*Delta, error) {
	var resp struct {
		Added []struct {
			ID       string `json:"id"`
			ThreadID string `json:"thread_id"`
		} `json:"added"`
		NewCursor string `json:"new_cursor"`
	}

	path := fmt.Sprintf("/v1/mailboxes/%s/deltas?cursor=%s",
		url.PathEscape(conn.EmailAddress), url.QueryEscape(cursor))
	if err := c.do(ctx, conn, "fetch_delta", http.MethodGet, path, nil, &resp); err != nil {
		// The provider reports an unknown or garbage-collected cursor as 404
		var pe *apperrors.ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return nil, apperrors.NewInvalidCursorError("fetch_delta", conn.EmailAddress, cursor)
		}
		return nil, err
	}

	delta := &Delta{NewCursor: resp.NewCursor}
	for _, m := range resp.Added {
		delta.Added = append(delta.Added, MessageRef{ID: m.ID, ThreadID: m.ThreadID})
	}
	return delta, nil
}

// FetchMessage resolves one message reference to a full message
func (c *httpClient) FetchMessage(ctx context.Context, conn *models.MailboxConnection, ref MessageRef) (*Message, error) {
	var resp struct {
		ID           string `json:"id"`
		ThreadID     string `json:"thread_id"`
		InternalDate int64  `json:"internal_date"` // epoch milliseconds
		Raw          string `json:"raw"`           // base64url RFC 2822 message
	}

	path := fmt.Sprintf("/v1/mailboxes/%s/messages/%s",
		url.PathEscape(conn.EmailAddress), url.PathEscape(ref.ID))
	if err := c.do(ctx, conn, "fetch_message", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	raw, err := decodeBase64(resp.Raw)
	if err != nil {
		return nil, apperrors.NewProviderError("fetch_message", conn.EmailAddress, 0,
			fmt.Sprintf("undecodable raw message %s: %v", ref.ID, err))
	}

	receivedAt := time.Time{}
	if resp.InternalDate > 0 {
		receivedAt = time.UnixMilli(resp.InternalDate).UTC()
	}

	threadID := resp.ThreadID
	if threadID == "" {
		threadID = ref.ThreadID
	}

	msg, err := parseRawMessage(raw, resp.ID, threadID, receivedAt)
	if err != nil {
		return nil, apperrors.NewProviderError("fetch_message", conn.EmailAddress, 0,
			fmt.Sprintf("unparsable message %s: %v", ref.ID, err))
	}
	return msg, nil
}

// SendMessage composes the wire-format message and submits it
func (c *httpClient) SendMessage(ctx context.Context, conn *models.MailboxConnection, msg *OutgoingMessage) (*SendResult, error) {
	raw, err := buildRawMessage(msg)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to build outgoing message")
	}

	req := map[string]string{
		"raw": base64.URLEncoding.EncodeToString(raw),
	}
	if msg.ThreadID != "" {
		req["thread_id"] = msg.ThreadID
	}

	var resp struct {
		ID       string `json:"id"`
		ThreadID string `json:"thread_id"`
	}

	path := fmt.Sprintf("/v1/mailboxes/%s/messages/send", url.PathEscape(conn.EmailAddress))
	if err := c.do(ctx, conn, "send_message", http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &SendResult{ProviderMessageID: resp.ID, ThreadID: resp.ThreadID}, nil
}

// do issues one authenticated JSON request. Error mapping: 401/403 become
// auth errors, any other non-2xx becomes a ProviderError carrying the status.
func (c *httpClient) do(ctx context.Context, conn *models.MailboxConnection, op, method, path string, reqBody, respBody interface{}) error {
	token, err := c.tokens.accessToken(ctx, conn)
	if err != nil {
		return err
	}

	var body io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return apperrors.Wrap(err, "failed to encode request body")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return apperrors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewProviderError(op, conn.EmailAddress, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apperrors.NewAuthError(op, conn.EmailAddress, readErrorBody(resp.Body))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.NewProviderError(op, conn.EmailAddress, resp.StatusCode, readErrorBody(resp.Body))
	}

	if respBody != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(respBody); err != nil {
			return apperrors.NewProviderError(op, conn.EmailAddress, resp.StatusCode,
				fmt.Sprintf("undecodable response: %v", err))
		}
	}
	return nil
}

// readErrorBody extracts a short error description from an upstream response
func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil || len(raw) == 0 {
		return "no response body"
	}

	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(raw))
}

// decodeBase64 accepts both URL-safe and standard alphabets, padded or not
func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.URLEncoding, base64.RawURLEncoding,
		base64.StdEncoding, base64.RawStdEncoding,
	} {
		if decoded, err := enc.DecodeString(s); err == nil {
			return decoded, nil
		}
	}
	return nil, fmt.Errorf("invalid base64 payload")
}
