package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/relaypost/relaypost-backend/internal/errors"
	"github.com/relaypost/relaypost-backend/internal/models"
	"github.com/relaypost/relaypost-backend/internal/repository"
	"github.com/relaypost/relaypost-backend/tests/mocks"
)

func newConnectionHandler() (*ConnectionHandler, *mocks.MockConnectionRepository, *MockWatchService) {
	connections := new(mocks.MockConnectionRepository)
	watches := new(MockWatchService)
	return NewConnectionHandler(connections, watches, testLogger()), connections, watches
}

const validConnectionBody = `{
	"owner_id": "owner-1",
	"email_address": "user@example.com",
	"access_token": "tok",
	"refresh_token": "ref"
}`

func TestConnectionCreate_LinksAndStartsWatch(t *testing.T) {
	handler, connections, watches := newConnectionHandler()
	connections.On("Create", mock.Anything, mock.AnythingOfType("*models.MailboxConnection")).
		Run(func(args mock.Arguments) {
			conn := args.Get(1).(*models.MailboxConnection)
			assert.Equal(t, "owner-1", conn.OwnerID)
			assert.True(t, conn.IsActive)
		}).Return(nil)

	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	watches.On("StartWatch", mock.Anything, "user@example.com").Return(&models.MailboxConnection{
		ID:             1,
		EmailAddress:   "user@example.com",
		SyncCursor:     "c-1",
		WatchExpiresAt: &expiry,
		IsActive:       true,
	}, nil)

	c, rec := newJSONContext(http.MethodPost, "/api/connections", validConnectionBody)
	require.NoError(t, handler.Create(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sync_cursor":"c-1"`)
	connections.AssertExpectations(t)
	watches.AssertExpectations(t)
}

// A failed watch registration must not fail the link: the connection row
// exists and the watch can be established later.
func TestConnectionCreate_WatchFailureStillLinks(t *testing.T) {
	handler, connections, watches := newConnectionHandler()
	connections.On("Create", mock.Anything, mock.Anything).Return(nil)
	watches.On("StartWatch", mock.Anything, "user@example.com").
		Return(nil, apperrors.NewAuthError("register_watch", "user@example.com", "token rejected"))

	c, rec := newJSONContext(http.MethodPost, "/api/connections", validConnectionBody)
	require.NoError(t, handler.Create(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestConnectionCreate_DuplicateMailbox(t *testing.T) {
	handler, connections, _ := newConnectionHandler()
	connections.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicateEntry)

	c, rec := newJSONContext(http.MethodPost, "/api/connections", validConnectionBody)
	require.NoError(t, handler.Create(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConnectionCreate_MissingFields(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing owner", `{"email_address":"user@example.com","access_token":"tok"}`},
		{"invalid email", `{"owner_id":"o","email_address":"nope","access_token":"tok"}`},
		{"missing token", `{"owner_id":"o","email_address":"user@example.com"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, connections, _ := newConnectionHandler()

			c, rec := newJSONContext(http.MethodPost, "/api/connections", tc.body)
			require.NoError(t, handler.Create(c))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			connections.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestConnectionDelete_UnlinksMailbox(t *testing.T) {
	handler, connections, watches := newConnectionHandler()
	connections.On("GetByID", mock.Anything, uint(1)).
		Return(&models.MailboxConnection{ID: 1, EmailAddress: "user@example.com"}, nil)
	watches.On("Unlink", mock.Anything, "user@example.com").Return(nil)

	c, rec := newJSONContext(http.MethodDelete, "/api/connections/1", "")
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, handler.Delete(c))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	watches.AssertExpectations(t)
}

func TestConnectionDelete_NotFound(t *testing.T) {
	handler, connections, _ := newConnectionHandler()
	connections.On("GetByID", mock.Anything, uint(9)).Return(nil, repository.ErrNotFound)

	c, rec := newJSONContext(http.MethodDelete, "/api/connections/9", "")
	c.SetParamNames("id")
	c.SetParamValues("9")
	require.NoError(t, handler.Delete(c))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
