package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaypost/relaypost-backend/internal/models"
	"github.com/relaypost/relaypost-backend/internal/repository"
)

// Signature headers on outbound webhook deliveries
const (
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderWebhookID        = "X-Webhook-ID"
)

const defaultDeliveryTimeout = 10 * time.Second

// EventPayload is the body POSTed to subscriber endpoints
type EventPayload struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Timestamp string    `json:"timestamp"`
	Data      EventData `json:"data"`
}

// EventData carries the message itself
type EventData struct {
	ID         string         `json:"id"`
	From       EventAddress   `json:"from"`
	To         []EventAddress `json:"to"`
	Subject    string         `json:"subject"`
	Text       string         `json:"text,omitempty"`
	HTML       string         `json:"html,omitempty"`
	Snippet    string         `json:"snippet,omitempty"`
	ThreadID   string         `json:"thread_id,omitempty"`
	InReplyTo  string         `json:"in_reply_to,omitempty"`
	References string         `json:"references,omitempty"`
	Headers    EventHeaders   `json:"headers"`
}

// EventAddress is one address in the payload
type EventAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// EventHeaders exposes the threading-relevant RFC 2822 headers
type EventHeaders struct {
	MessageID string `json:"message-id"`
	Date      string `json:"date"`
}

// Dispatcher fans one message event out to all subscribed webhook endpoints.
// Deliveries are concurrent and independent: a broken endpoint can neither
// delay nor fail its siblings, and nothing here ever propagates an error to
// the sync pass. One attempt per endpoint per event, outcome recorded.
type Dispatcher struct {
	webhooks repository.WebhookRepository
	attempts repository.DeliveryAttemptRepository
	client   *http.Client
	logger   *slog.Logger
}

// NewDispatcher creates a new Dispatcher. timeout bounds each endpoint call;
// zero selects the default.
func NewDispatcher(
	webhooks repository.WebhookRepository,
	attempts repository.DeliveryAttemptRepository,
	timeout time.Duration,
	logger *slog.Logger,
) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &Dispatcher{
		webhooks: webhooks,
		attempts: attempts,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Deliver sends the event to every active webhook subscribed to its type.
// Blocks until all endpoint calls finish so in-delta ordering holds.
func (d *Dispatcher) Deliver(ctx context.Context, conn *models.MailboxConnection, eventType string, log *models.EmailLog) {
	hooks, err := d.webhooks.ListActiveForEvent(ctx, conn.ID, eventType)
	if err != nil {
		d.logger.Error("failed to load webhooks, skipping fan-out",
			slog.String("mailbox", conn.EmailAddress),
			slog.String("event_type", eventType),
			slog.Any("error", err))
		return
	}
	if len(hooks) == 0 {
		return
	}

	payload := buildEventPayload(eventType, log)
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("failed to serialize event payload",
			slog.String("event_id", payload.ID),
			slog.Any("error", err))
		return
	}

	var wg sync.WaitGroup
	for i := range hooks {
		hook := hooks[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.deliverOne(ctx, &hook, payload.ID, eventType, body)
		}()
	}
	wg.Wait()
}

// deliverOne posts the signed payload to a single endpoint and records the
// outcome. All failures stop here.
func (d *Dispatcher) deliverOne(ctx context.Context, hook *models.Webhook, eventID, eventType string, body []byte) {
	attempt := &models.DeliveryAttempt{
		WebhookID: hook.ID,
		EventID:   eventID,
		EventType: eventType,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.TargetURL, bytes.NewReader(body))
	if err != nil {
		attempt.Outcome = models.OutcomeNetworkError
		attempt.ErrorDetail = err.Error()
		d.record(ctx, hook, attempt)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderWebhookSignature, SignPayload(body, hook.Secret))
	req.Header.Set(HeaderWebhookID, fmt.Sprintf("%d", hook.ID))

	resp, err := d.client.Do(req)
	if err != nil {
		attempt.Outcome = models.OutcomeNetworkError
		attempt.ErrorDetail = err.Error()
		d.record(ctx, hook, attempt)
		return
	}
	defer resp.Body.Close()

	attempt.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		attempt.Outcome = models.OutcomeSuccess
	} else {
		attempt.Outcome = models.OutcomeHTTPError
		attempt.ErrorDetail = fmt.Sprintf("endpoint returned %d", resp.StatusCode)
	}
	d.record(ctx, hook, attempt)
}

func (d *Dispatcher) record(ctx context.Context, hook *models.Webhook, attempt *models.DeliveryAttempt) {
	if attempt.Outcome != models.OutcomeSuccess {
		d.logger.Warn("webhook delivery failed",
			slog.Uint64("webhook_id", uint64(hook.ID)),
			slog.String("target_url", hook.TargetURL),
			slog.String("event_id", attempt.EventID),
			slog.String("outcome", string(attempt.Outcome)),
			slog.Int("status_code", attempt.StatusCode),
			slog.String("detail", attempt.ErrorDetail))
	}
	if err := d.attempts.Create(ctx, attempt); err != nil {
		d.logger.Error("failed to record delivery attempt",
			slog.Uint64("webhook_id", uint64(hook.ID)),
			slog.Any("error", err))
	}
}

// buildEventPayload maps an email log row onto the subscriber payload shape.
// The event id is generated once per event: every subscriber of this event
// sees the same id, distinct events see distinct ids.
func buildEventPayload(eventType string, log *models.EmailLog) *EventPayload {
	to := make([]EventAddress, 0, len(log.ToRecipients))
	for _, r := range log.ToRecipients {
		to = append(to, EventAddress{Email: r.Email, Name: r.Name})
	}

	return &EventPayload{
		Type:      eventType,
		ID:        "evt_" + uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data: EventData{
			ID:         log.ProviderMessageID,
			From:       EventAddress{Email: log.FromEmail, Name: log.FromName},
			To:         to,
			Subject:    log.Subject,
			Text:       log.BodyText,
			HTML:       log.BodyHTML,
			Snippet:    log.Snippet,
			ThreadID:   log.ThreadID,
			InReplyTo:  log.InReplyTo,
			References: log.ReferencesHeader,
			Headers: EventHeaders{
				MessageID: log.MessageIDHeader,
				Date:      log.ReceivedAt.UTC().Format(time.RFC1123Z),
			},
		},
	}
}
