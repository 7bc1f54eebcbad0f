package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/relaypost/relaypost-backend/internal/models"
	"github.com/relaypost/relaypost-backend/internal/repository"
	"github.com/relaypost/relaypost-backend/tests/mocks"
)

func newMessageHandler() (*MessageHandler, *mocks.MockEmailLogRepository, *mocks.MockConnectionRepository) {
	emailLogs := new(mocks.MockEmailLogRepository)
	connections := new(mocks.MockConnectionRepository)
	return NewMessageHandler(emailLogs, connections), emailLogs, connections
}

func TestMessageList_Success(t *testing.T) {
	handler, emailLogs, connections := newMessageHandler()
	connections.On("GetByAddress", mock.Anything, "user@example.com").
		Return(&models.MailboxConnection{ID: 1}, nil)
	emailLogs.On("ListByConnection", mock.Anything, uint(1), 20, 0).
		Return([]models.EmailLog{
			{ID: 2, Subject: "newer", ReceivedAt: time.Now()},
			{ID: 1, Subject: "older", ReceivedAt: time.Now().Add(-time.Hour)},
		}, int64(2), nil)

	c, rec := newJSONContext(http.MethodGet, "/api/messages?mailbox_address=user@example.com", "")
	require.NoError(t, handler.List(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":2`)
	assert.Contains(t, rec.Body.String(), "newer")
}

func TestMessageList_ClampsPagination(t *testing.T) {
	handler, emailLogs, connections := newMessageHandler()
	connections.On("GetByAddress", mock.Anything, "user@example.com").
		Return(&models.MailboxConnection{ID: 1}, nil)
	emailLogs.On("ListByConnection", mock.Anything, uint(1), 100, 0).
		Return([]models.EmailLog{}, int64(0), nil)

	c, rec := newJSONContext(http.MethodGet, "/api/messages?mailbox_address=user@example.com&limit=9999", "")
	require.NoError(t, handler.List(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	emailLogs.AssertExpectations(t)
}

func TestMessageList_UnknownMailbox(t *testing.T) {
	handler, _, connections := newMessageHandler()
	connections.On("GetByAddress", mock.Anything, "ghost@example.com").
		Return(nil, repository.ErrNotFound)

	c, rec := newJSONContext(http.MethodGet, "/api/messages?mailbox_address=ghost@example.com", "")
	require.NoError(t, handler.List(c))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageGet_NotFound(t *testing.T) {
	handler, emailLogs, _ := newMessageHandler()
	emailLogs.On("GetByID", mock.Anything, uint(7)).Return(nil, repository.ErrNotFound)

	c, rec := newJSONContext(http.MethodGet, "/api/messages/7", "")
	c.SetParamNames("id")
	c.SetParamValues("7")
	require.NoError(t, handler.Get(c))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageThread_ChronologicalAcrossDirections(t *testing.T) {
	handler, emailLogs, connections := newMessageHandler()
	connections.On("GetByAddress", mock.Anything, "user@example.com").
		Return(&models.MailboxConnection{ID: 1}, nil)
	emailLogs.On("ListByThread", mock.Anything, uint(1), "t-1").
		Return([]models.EmailLog{
			{ID: 1, Direction: models.DirectionReceived, Subject: "question"},
			{ID: 2, Direction: models.DirectionSent, Subject: "Re: question"},
		}, nil)

	c, rec := newJSONContext(http.MethodGet, "/api/threads/t-1?mailbox_address=user@example.com", "")
	c.SetParamNames("thread_id")
	c.SetParamValues("t-1")
	require.NoError(t, handler.Thread(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Re: question")
}

func TestMessageThread_RequiresMailboxAddress(t *testing.T) {
	handler, _, _ := newMessageHandler()

	c, rec := newJSONContext(http.MethodGet, "/api/threads/t-1", "")
	c.SetParamNames("thread_id")
	c.SetParamValues("t-1")
	require.NoError(t, handler.Thread(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
