package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	apperrors "github.com/relaypost/relaypost-backend/internal/errors"
	"github.com/relaypost/relaypost-backend/internal/models"
	"github.com/relaypost/relaypost-backend/internal/provider"
	"github.com/relaypost/relaypost-backend/internal/repository"
	"github.com/relaypost/relaypost-backend/tests/mocks"
)

// recordingDispatcher captures dispatched events in order
type recordingDispatcher struct {
	mu     sync.Mutex
	events []string
}

func (d *recordingDispatcher) Deliver(_ context.Context, _ *models.MailboxConnection, eventType string, log *models.EmailLog) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, eventType+":"+log.ProviderMessageID)
}

// recordingBroadcaster captures realtime pushes
type recordingBroadcaster struct {
	mu  sync.Mutex
	ids []string
}

func (b *recordingBroadcaster) BroadcastNewMessage(_ uint, log *models.EmailLog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = append(b.ids, log.ProviderMessageID)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeConnection() *models.MailboxConnection {
	return &models.MailboxConnection{
		ID:           1,
		OwnerID:      "owner-1",
		EmailAddress: "user@example.com",
		AccessToken:  "token",
		SyncCursor:   "c1",
		IsActive:     true,
	}
}

func providerMessage(id, threadID string) *provider.Message {
	return &provider.Message{
		ProviderMessageID: id,
		ThreadID:          threadID,
		FromEmail:         "sender@example.com",
		Subject:           "hi",
		ReceivedAt:        time.Now(),
	}
}

func newEngine(
	connections *mocks.MockConnectionRepository,
	emailLogs *mocks.MockEmailLogRepository,
	providerClient *mocks.MockProviderClient,
	dispatcher *recordingDispatcher,
	broadcaster *recordingBroadcaster,
) *SyncEngine {
	var b MessageBroadcaster
	if broadcaster != nil {
		b = broadcaster
	}
	return NewSyncEngine(connections, emailLogs, providerClient, dispatcher, b, testLogger())
}

func TestProcessNotification_NewMessages_InOrderAndCursorAdvances(t *testing.T) {
	connections := new(mocks.MockConnectionRepository)
	emailLogs := new(mocks.MockEmailLogRepository)
	providerClient := new(mocks.MockProviderClient)
	dispatcher := &recordingDispatcher{}
	broadcaster := &recordingBroadcaster{}

	conn := activeConnection()
	connections.On("GetByAddress", mock.Anything, "user@example.com").Return(conn, nil)
	providerClient.On("FetchDelta", mock.Anything, conn, "c1").Return(&provider.Delta{
		Added:     []provider.MessageRef{{ID: "m1", ThreadID: "t1"}, {ID: "m2", ThreadID: "t1"}},
		NewCursor: "c2",
	}, nil)
	emailLogs.On("Exists", mock.Anything, uint(1), "m1").Return(false, nil)
	emailLogs.On("Exists", mock.Anything, uint(1), "m2").Return(false, nil)
	providerClient.On("FetchMessage", mock.Anything, conn, provider.MessageRef{ID: "m1", ThreadID: "t1"}).Return(providerMessage("m1", "t1"), nil)
	providerClient.On("FetchMessage", mock.Anything, conn, provider.MessageRef{ID: "m2", ThreadID: "t1"}).Return(providerMessage("m2", "t1"), nil)
	emailLogs.On("Create", mock.Anything, mock.AnythingOfType("*models.EmailLog")).Return(nil)
	connections.On("UpdateCursor", mock.Anything, uint(1), "c2").Return(nil)

	engine := newEngine(connections, emailLogs, providerClient, dispatcher, broadcaster)
	err := engine.ProcessNotification(context.Background(), &Notification{MailboxAddress: "user@example.com", CursorHint: "c2"})

	require.NoError(t, err)
	assert.Equal(t, []string{"email.received:m1", "email.received:m2"}, dispatcher.events)
	assert.Equal(t, []string{"m1", "m2"}, broadcaster.ids)
	connections.AssertCalled(t, "UpdateCursor", mock.Anything, uint(1), "c2")
}

func TestProcessNotification_Redelivery_SuppressesDuplicates(t *testing.T) {
	connections := new(mocks.MockConnectionRepository)
	emailLogs := new(mocks.MockEmailLogRepository)
	providerClient := new(mocks.MockProviderClient)
	dispatcher := &recordingDispatcher{}

	conn := activeConnection()
	connections.On("GetByAddress", mock.Anything, "user@example.com").Return(conn, nil)
	providerClient.On("FetchDelta", mock.Anything, conn, "c1").Return(&provider.Delta{
		Added:     []provider.MessageRef{{ID: "m1"}, {ID: "m2"}},
		NewCursor: "c2",
	}, nil)
	emailLogs.On("Exists", mock.Anything, uint(1), "m1").Return(true, nil)
	emailLogs.On("Exists", mock.Anything, uint(1), "m2").Return(true, nil)
	connections.On("UpdateCursor", mock.Anything, uint(1), "c2").Return(nil)

	engine := newEngine(connections, emailLogs, providerClient, dispatcher, nil)
	err := engine.ProcessNotification(context.Background(), &Notification{MailboxAddress: "user@example.com"})

	require.NoError(t, err)
	assert.Empty(t, dispatcher.events)
	emailLogs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	providerClient.AssertNotCalled(t, "FetchMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessNotification_PartialOverlap_OnlyNewDispatched(t *testing.T) {
	connections := new(mocks.MockConnectionRepository)
	emailLogs := new(mocks.MockEmailLogRepository)
	providerClient := new(mocks.MockProviderClient)
	dispatcher := &recordingDispatcher{}

	conn := activeConnection()
	connections.On("GetByAddress", mock.Anything, "user@example.com").Return(conn, nil)
	providerClient.On("FetchDelta", mock.Anything, conn, "c1").Return(&provider.Delta{
		Added:     []provider.MessageRef{{ID: "m1"}, {ID: "m2"}},
		NewCursor: "c3",
	}, nil)
	emailLogs.On("Exists", mock.Anything, uint(1), "m1").Return(true, nil)
	emailLogs.On("Exists", mock.Anything, uint(1), "m2").Return(false, nil)
	providerClient.On("FetchMessage", mock.Anything, conn, provider.MessageRef{ID: "m2"}).Return(providerMessage("m2", ""), nil)
	emailLogs.On("Create", mock.Anything, mock.AnythingOfType("*models.EmailLog")).Return(nil)
	connections.On("UpdateCursor", mock.Anything, uint(1), "c3").Return(nil)

	engine := newEngine(connections, emailLogs, providerClient, dispatcher, nil)
	err := engine.ProcessNotification(context.Background(), &Notification{MailboxAddress: "user@example.com"})

	require.NoError(t, err)
	assert.Equal(t, []string{"email.received:m2"}, dispatcher.events)
}

func TestProcessNotification_UnknownMailbox_DiscardedWithoutError(t *testing.T) {
	connections := new(mocks.MockConnectionRepository)
	emailLogs := new(mocks.MockEmailLogRepository)
	providerClient := new(mocks.MockProviderClient)

	connections.On("GetByAddress", mock.Anything, "ghost@example.com").Return(nil, repository.ErrNotFound)

	engine := newEngine(connections, emailLogs, providerClient, &recordingDispatcher{}, nil)
	err := engine.ProcessNotification(context.Background(), &Notification{MailboxAddress: "ghost@example.com"})

	require.NoError(t, err)
	providerClient.AssertNotCalled(t, "FetchDelta", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessNotification_InactiveMailbox_DiscardedWithoutError(t *testing.T) {
	connections := new(mocks.MockConnectionRepository)
	emailLogs := new(mocks.MockEmailLogRepository)
	providerClient := new(mocks.MockProviderClient)

	conn := activeConnection()
	conn.IsActive = false
	connections.On("GetByAddress", mock.Anything, "user@example.com").Return(conn, nil)

	engine := newEngine(connections, emailLogs, providerClient, &recordingDispatcher{}, nil)
	err := engine.ProcessNotification(context.Background(), &Notification{MailboxAddress: "user@example.com"})

	require.NoError(t, err)
	providerClient.AssertNotCalled(t, "FetchDelta", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessNotification_FetchFailure_SkipsMessageButAdvances(t *testing.T) {
	connections := new(mocks.MockConnectionRepository)
	emailLogs := new(mocks.MockEmailLogRepository)
	providerClient := new(mocks.MockProviderClient)
	dispatcher := &recordingDispatcher{}

	conn := activeConnection()
	connections.On("GetByAddress", mock.Anything, "user@example.com").Return(conn, nil)
	providerClient.On("FetchDelta", mock.Anything, conn, "c1").Return(&provider.Delta{
		Added:     []provider.MessageRef{{ID: "m1"}, {ID: "m2"}},
		NewCursor: "c2",
	}, nil)
	emailLogs.On("Exists", mock.Anything, uint(1), "m1").Return(false, nil)
	emailLogs.On("Exists", mock.Anything, uint(1), "m2").Return(false, nil)
	providerClient.On("FetchMessage", mock.Anything, conn, provider.MessageRef{ID: "m1"}).Return(nil, errors.New("transient"))
	providerClient.On("FetchMessage", mock.Anything, conn, provider.MessageRef{ID: "m2"}).Return(providerMessage("m2", ""), nil)
	emailLogs.On("Create", mock.Anything, mock.AnythingOfType("*models.EmailLog")).Return(nil)
	connections.On("UpdateCursor", mock.Anything, uint(1), "c2").Return(nil)

	engine := newEngine(connections, emailLogs, providerClient, dispatcher, nil)
	err := engine.ProcessNotification(context.Background(), &Notification{MailboxAddress: "user@example.com"})

	require.NoError(t, err)
	assert.Equal(t, []string{"email.received:m2"}, dispatcher.events)
	connections.AssertCalled(t, "UpdateCursor", mock.Anything, uint(1), "c2")
}

func TestProcessNotification_StaleCursor_RecoversFromHint(t *testing.T) {
	connections := new(mocks.MockConnectionRepository)
	emailLogs := new(mocks.MockEmailLogRepository)
	providerClient := new(mocks.MockProviderClient)
	dispatcher := &recordingDispatcher{}

	conn := activeConnection()
	conn.SyncCursor = "stale"
	connections.On("GetByAddress", mock.Anything, "user@example.com").Return(conn, nil)
	providerClient.On("FetchDelta", mock.Anything, conn, "stale").
		Return(nil, apperrors.NewInvalidCursorError("fetch_delta", "user@example.com", "stale"))
	providerClient.On("FetchDelta", mock.Anything, conn, "hint-7").Return(&provider.Delta{
		Added:     []provider.MessageRef{{ID: "m9"}},
		NewCursor: "c9",
	}, nil)
	emailLogs.On("Exists", mock.Anything, uint(1), "m9").Return(false, nil)
	providerClient.On("FetchMessage", mock.Anything, conn, provider.MessageRef{ID: "m9"}).Return(providerMessage("m9", ""), nil)
	emailLogs.On("Create", mock.Anything, mock.AnythingOfType("*models.EmailLog")).Return(nil)
	connections.On("UpdateCursor", mock.Anything, uint(1), "c9").Return(nil)

	engine := newEngine(connections, emailLogs, providerClient, dispatcher, nil)
	err := engine.ProcessNotification(context.Background(), &Notification{MailboxAddress: "user@example.com", CursorHint: "hint-7"})

	require.NoError(t, err)
	assert.Equal(t, []string{"email.received:m9"}, dispatcher.events)
}

func TestProcessNotification_NoStoredCursor_BootstrapsFromHint(t *testing.T) {
	connections := new(mocks.MockConnectionRepository)
	emailLogs := new(mocks.MockEmailLogRepository)
	providerClient := new(mocks.MockProviderClient)

	conn := activeConnection()
	conn.SyncCursor = ""
	connections.On("GetByAddress", mock.Anything, "user@example.com").Return(conn, nil)
	providerClient.On("FetchDelta", mock.Anything, conn, "hint-1").Return(&provider.Delta{NewCursor: "hint-1"}, nil)
	connections.On("UpdateCursor", mock.Anything, uint(1), "hint-1").Return(nil)

	engine := newEngine(connections, emailLogs, providerClient, &recordingDispatcher{}, nil)
	err := engine.ProcessNotification(context.Background(), &Notification{MailboxAddress: "user@example.com", CursorHint: "hint-1"})

	require.NoError(t, err)
	providerClient.AssertCalled(t, "FetchDelta", mock.Anything, conn, "hint-1")
}

func TestProcessNotification_DeltaError_CursorNotAdvanced(t *testing.T) {
	connections := new(mocks.MockConnectionRepository)
	emailLogs := new(mocks.MockEmailLogRepository)
	providerClient := new(mocks.MockProviderClient)

	conn := activeConnection()
	connections.On("GetByAddress", mock.Anything, "user@example.com").Return(conn, nil)
	providerClient.On("FetchDelta", mock.Anything, conn, "c1").Return(nil, errors.New("upstream down"))

	engine := newEngine(connections, emailLogs, providerClient, &recordingDispatcher{}, nil)
	err := engine.ProcessNotification(context.Background(), &Notification{MailboxAddress: "user@example.com", CursorHint: "c5"})

	require.Error(t, err)
	connections.AssertNotCalled(t, "UpdateCursor", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessNotification_ConcurrentCreateRace_Skips(t *testing.T) {
	connections := new(mocks.MockConnectionRepository)
	emailLogs := new(mocks.MockEmailLogRepository)
	providerClient := new(mocks.MockProviderClient)
	dispatcher := &recordingDispatcher{}

	conn := activeConnection()
	connections.On("GetByAddress", mock.Anything, "user@example.com").Return(conn, nil)
	providerClient.On("FetchDelta", mock.Anything, conn, "c1").Return(&provider.Delta{
		Added:     []provider.MessageRef{{ID: "m1"}},
		NewCursor: "c2",
	}, nil)
	emailLogs.On("Exists", mock.Anything, uint(1), "m1").Return(false, nil)
	providerClient.On("FetchMessage", mock.Anything, conn, provider.MessageRef{ID: "m1"}).Return(providerMessage("m1", ""), nil)
	emailLogs.On("Create", mock.Anything, mock.AnythingOfType("*models.EmailLog")).Return(repository.ErrDuplicateEntry)
	connections.On("UpdateCursor", mock.Anything, uint(1), "c2").Return(nil)

	engine := newEngine(connections, emailLogs, providerClient, dispatcher, nil)
	err := engine.ProcessNotification(context.Background(), &Notification{MailboxAddress: "user@example.com"})

	require.NoError(t, err)
	assert.Empty(t, dispatcher.events)
}
