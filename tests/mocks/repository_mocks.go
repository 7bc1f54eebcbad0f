package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/relaypost/relaypost-backend/internal/models"
)

// MockConnectionRepository implements repository.ConnectionRepository
type MockConnectionRepository struct {
	mock.Mock
}

// Create creates a new mailbox connection
func (m *MockConnectionRepository) Create(ctx context.Context, conn *models.MailboxConnection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

// GetByID retrieves a connection by its ID
func (m *MockConnectionRepository) GetByID(ctx context.Context, id uint) (*models.MailboxConnection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MailboxConnection), args.Error(1)
}

// GetByAddress retrieves a connection by its mailbox address
func (m *MockConnectionRepository) GetByAddress(ctx context.Context, emailAddress string) (*models.MailboxConnection, error) {
	args := m.Called(ctx, emailAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MailboxConnection), args.Error(1)
}

// ListActive retrieves all active connections
func (m *MockConnectionRepository) ListActive(ctx context.Context) ([]models.MailboxConnection, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MailboxConnection), args.Error(1)
}

// ListWatchedExpiringBefore retrieves watched connections expiring before the cutoff
func (m *MockConnectionRepository) ListWatchedExpiringBefore(ctx context.Context, cutoff time.Time) ([]models.MailboxConnection, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MailboxConnection), args.Error(1)
}

// UpdateCursor persists a new sync cursor
func (m *MockConnectionRepository) UpdateCursor(ctx context.Context, id uint, cursor string) error {
	args := m.Called(ctx, id, cursor)
	return args.Error(0)
}

// UpdateWatch persists the cursor and watch expiry together
func (m *MockConnectionRepository) UpdateWatch(ctx context.Context, id uint, cursor string, expiresAt time.Time) error {
	args := m.Called(ctx, id, cursor, expiresAt)
	return args.Error(0)
}

// ClearWatch removes the watch expiry
func (m *MockConnectionRepository) ClearWatch(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// UpdateTokens persists a refreshed credential bundle
func (m *MockConnectionRepository) UpdateTokens(ctx context.Context, id uint, accessToken, refreshToken string, expiry time.Time) error {
	args := m.Called(ctx, id, accessToken, refreshToken, expiry)
	return args.Error(0)
}

// Deactivate marks a connection as inactive
func (m *MockConnectionRepository) Deactivate(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockEmailLogRepository implements repository.EmailLogRepository
type MockEmailLogRepository struct {
	mock.Mock
}

// Create appends a new email log row
func (m *MockEmailLogRepository) Create(ctx context.Context, log *models.EmailLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

// Exists reports whether a provider message is already logged
func (m *MockEmailLogRepository) Exists(ctx context.Context, connectionID uint, providerMessageID string) (bool, error) {
	args := m.Called(ctx, connectionID, providerMessageID)
	return args.Bool(0), args.Error(1)
}

// GetByID retrieves an email log by its ID
func (m *MockEmailLogRepository) GetByID(ctx context.Context, id uint) (*models.EmailLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailLog), args.Error(1)
}

// ListByConnection retrieves logs for a connection, newest first
func (m *MockEmailLogRepository) ListByConnection(ctx context.Context, connectionID uint, limit, offset int) ([]models.EmailLog, int64, error) {
	args := m.Called(ctx, connectionID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.EmailLog), args.Get(1).(int64), args.Error(2)
}

// ListByThread retrieves a thread's logs in chronological order
func (m *MockEmailLogRepository) ListByThread(ctx context.Context, connectionID uint, threadID string) ([]models.EmailLog, error) {
	args := m.Called(ctx, connectionID, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EmailLog), args.Error(1)
}

// MockWebhookRepository implements repository.WebhookRepository
type MockWebhookRepository struct {
	mock.Mock
}

// Create creates a new webhook
func (m *MockWebhookRepository) Create(ctx context.Context, webhook *models.Webhook) error {
	args := m.Called(ctx, webhook)
	return args.Error(0)
}

// GetByID retrieves a webhook by its ID
func (m *MockWebhookRepository) GetByID(ctx context.Context, id uint) (*models.Webhook, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Webhook), args.Error(1)
}

// ListByConnection retrieves all webhooks of a connection
func (m *MockWebhookRepository) ListByConnection(ctx context.Context, connectionID uint) ([]models.Webhook, error) {
	args := m.Called(ctx, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Webhook), args.Error(1)
}

// ListActiveForEvent retrieves active webhooks subscribed to an event type
func (m *MockWebhookRepository) ListActiveForEvent(ctx context.Context, connectionID uint, eventType string) ([]models.Webhook, error) {
	args := m.Called(ctx, connectionID, eventType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Webhook), args.Error(1)
}

// Delete deletes a webhook by its ID
func (m *MockWebhookRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockDeliveryAttemptRepository implements repository.DeliveryAttemptRepository
type MockDeliveryAttemptRepository struct {
	mock.Mock
}

// Create records one delivery attempt
func (m *MockDeliveryAttemptRepository) Create(ctx context.Context, attempt *models.DeliveryAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

// ListByWebhook retrieves a webhook's delivery attempts, newest first
func (m *MockDeliveryAttemptRepository) ListByWebhook(ctx context.Context, webhookID uint, limit, offset int) ([]models.DeliveryAttempt, int64, error) {
	args := m.Called(ctx, webhookID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.DeliveryAttempt), args.Get(1).(int64), args.Error(2)
}
