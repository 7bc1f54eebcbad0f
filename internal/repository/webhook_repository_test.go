package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/relaypost/relaypost-backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// WebhookRepositoryTestSuite is the test suite for WebhookRepository
type WebhookRepositoryTestSuite struct {
	suite.Suite
	db     *gorm.DB
	repo   WebhookRepository
	connID uint
}

// SetupSuite runs once before all tests
func (s *WebhookRepositoryTestSuite) SetupSuite() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)

	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(&models.MailboxConnection{}, &models.Webhook{}, &models.DeliveryAttempt{})
	require.NoError(s.T(), err)

	s.db = db
	s.repo = NewWebhookRepository(db)
}

// TearDownSuite runs once after all tests
func (s *WebhookRepositoryTestSuite) TearDownSuite() {
	sqlDB, _ := s.db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// SetupTest runs before each test
func (s *WebhookRepositoryTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM delivery_attempts")
	s.db.Exec("DELETE FROM webhooks")
	s.db.Exec("DELETE FROM mailbox_connections")

	conn := &models.MailboxConnection{
		OwnerID:      "owner-1",
		EmailAddress: "hooks@example.com",
		AccessToken:  "token",
		IsActive:     true,
	}
	require.NoError(s.T(), s.db.Create(conn).Error)
	s.connID = conn.ID
}

// TestWebhookRepositoryTestSuite runs the test suite
func TestWebhookRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(WebhookRepositoryTestSuite))
}

func (s *WebhookRepositoryTestSuite) newWebhook(url string, events []string, active bool) *models.Webhook {
	hook := &models.Webhook{
		ConnectionID: s.connID,
		TargetURL:    url,
		Secret:       "secret",
		EventTypes:   models.EventTypeList(events),
		IsActive:     active,
	}
	require.NoError(s.T(), s.repo.Create(context.Background(), hook))
	return hook
}

func (s *WebhookRepositoryTestSuite) TestCreate_Success() {
	hook := s.newWebhook("https://a.example.com/hook", []string{models.EventEmailReceived}, true)

	assert.NotZero(s.T(), hook.ID)
}

func (s *WebhookRepositoryTestSuite) TestListActiveForEvent_FiltersSubscriptionAndActive() {
	s.newWebhook("https://a.example.com", []string{models.EventEmailReceived}, true)
	s.newWebhook("https://b.example.com", []string{models.EventEmailSent}, true)
	s.newWebhook("https://c.example.com", []string{models.EventEmailReceived, models.EventEmailSent}, true)
	s.newWebhook("https://d.example.com", []string{models.EventEmailReceived}, false)

	hooks, err := s.repo.ListActiveForEvent(context.Background(), s.connID, models.EventEmailReceived)

	require.NoError(s.T(), err)
	require.Len(s.T(), hooks, 2)
	urls := []string{hooks[0].TargetURL, hooks[1].TargetURL}
	assert.Contains(s.T(), urls, "https://a.example.com")
	assert.Contains(s.T(), urls, "https://c.example.com")
}

func (s *WebhookRepositoryTestSuite) TestListActiveForEvent_OtherConnectionExcluded() {
	s.newWebhook("https://mine.example.com", []string{models.EventEmailReceived}, true)

	other := &models.MailboxConnection{
		OwnerID:      "owner-2",
		EmailAddress: "other@example.com",
		AccessToken:  "token",
		IsActive:     true,
	}
	require.NoError(s.T(), s.db.Create(other).Error)
	otherHook := &models.Webhook{
		ConnectionID: other.ID,
		TargetURL:    "https://theirs.example.com",
		Secret:       "secret",
		EventTypes:   models.EventTypeList{models.EventEmailReceived},
		IsActive:     true,
	}
	require.NoError(s.T(), s.repo.Create(context.Background(), otherHook))

	hooks, err := s.repo.ListActiveForEvent(context.Background(), s.connID, models.EventEmailReceived)

	require.NoError(s.T(), err)
	require.Len(s.T(), hooks, 1)
	assert.Equal(s.T(), "https://mine.example.com", hooks[0].TargetURL)
}

func (s *WebhookRepositoryTestSuite) TestDelete_Success() {
	hook := s.newWebhook("https://gone.example.com", []string{models.EventEmailReceived}, true)

	require.NoError(s.T(), s.repo.Delete(context.Background(), hook.ID))

	_, err := s.repo.GetByID(context.Background(), hook.ID)
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *WebhookRepositoryTestSuite) TestDelete_NotFound() {
	err := s.repo.Delete(context.Background(), 9999)

	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *WebhookRepositoryTestSuite) TestDeliveryAttempts_CreateAndList() {
	hook := s.newWebhook("https://a.example.com", []string{models.EventEmailReceived}, true)
	attempts := NewDeliveryAttemptRepository(s.db)

	for _, outcome := range []models.DeliveryOutcome{models.OutcomeSuccess, models.OutcomeHTTPError} {
		err := attempts.Create(context.Background(), &models.DeliveryAttempt{
			WebhookID: hook.ID,
			EventID:   "evt_1",
			EventType: models.EventEmailReceived,
			Outcome:   outcome,
		})
		require.NoError(s.T(), err)
	}

	list, total, err := attempts.ListByWebhook(context.Background(), hook.ID, 10, 0)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), total)
	assert.Len(s.T(), list, 2)
}
