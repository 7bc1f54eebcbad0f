package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==================== Error Code Tests ====================

func TestGetErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{ErrNotFound, CodeNotFound},
		{ErrConnectionNotFound, CodeNotFound},
		{ErrWebhookNotFound, CodeNotFound},
		{ErrMessageNotFound, CodeNotFound},
		{ErrDuplicateEntry, CodeDuplicateEntry},
		{ErrInvalidInput, CodeInvalidInput},
		{ErrConnectionInactive, CodeConnectionInactive},
		{ErrUnauthorized, CodeUnauthorized},
		{ErrAuth, CodeAuthFailed},
		{ErrInvalidCursor, CodeInvalidCursor},
		{ErrProvider, CodeProviderError},
		{ErrDelivery, CodeDeliveryFailed},
		{stderrors.New("something else"), CodeInternalError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.code, GetErrorCode(tc.err), "error %v", tc.err)
	}
}

func TestGetErrorCode_WrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("fetch delta: %w", ErrInvalidCursor)
	assert.Equal(t, CodeInvalidCursor, GetErrorCode(wrapped))

	wrapped = Wrap(ErrConnectionNotFound, "start watch")
	assert.Equal(t, CodeNotFound, GetErrorCode(wrapped))
}

// ==================== AppError Tests ====================

func TestAppError(t *testing.T) {
	err := NewAppError(ErrNotFound, "connection 5 not found", CodeNotFound)

	assert.Equal(t, "connection 5 not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)

	noMessage := NewAppError(ErrInternal, "", CodeInternalError)
	assert.Equal(t, ErrInternal.Error(), noMessage.Error())
}

// ==================== ProviderError Tests ====================

func TestProviderError_ErrorString(t *testing.T) {
	err := NewProviderError("register_watch", "user@example.com", 503, "upstream unavailable")
	assert.Equal(t, "register_watch: upstream unavailable (mailbox user@example.com)", err.Error())
	assert.Equal(t, 503, err.StatusCode)

	noMailbox := NewProviderError("send_message", "", 500, "boom")
	assert.Equal(t, "send_message: boom", noMailbox.Error())
}

func TestProviderError_SentinelWrapping(t *testing.T) {
	authErr := NewAuthError("fetch_delta", "user@example.com", "token rejected")
	require.ErrorIs(t, authErr, ErrAuth)
	assert.True(t, IsAuthError(authErr))
	assert.False(t, IsInvalidCursor(authErr))

	cursorErr := NewInvalidCursorError("fetch_delta", "user@example.com", "c-stale")
	require.ErrorIs(t, cursorErr, ErrInvalidCursor)
	assert.True(t, IsInvalidCursor(cursorErr))
	assert.Contains(t, cursorErr.Message, "c-stale")

	providerErr := NewProviderError("cancel_watch", "user@example.com", 500, "boom")
	require.ErrorIs(t, providerErr, ErrProvider)
	assert.False(t, IsAuthError(providerErr))
}

func TestProviderError_WrappedThroughContext(t *testing.T) {
	err := fmt.Errorf("sync mailbox: %w", NewAuthError("fetch_delta", "user@example.com", "token rejected"))

	assert.True(t, IsAuthError(err))
	assert.Equal(t, CodeAuthFailed, GetErrorCode(err))

	var provErr *ProviderError
	require.True(t, stderrors.As(err, &provErr))
	assert.Equal(t, "fetch_delta", provErr.Op)
}

// ==================== Helper Tests ====================

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))

	err := Wrap(ErrNotFound, "lookup failed")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "lookup failed")
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotFound(ErrMessageNotFound))
	assert.False(t, IsNotFound(ErrDuplicateEntry))
	assert.True(t, IsDuplicateEntry(ErrDuplicateEntry))
	assert.True(t, IsInvalidInput(fmt.Errorf("decode: %w", ErrInvalidInput)))
	assert.False(t, IsInvalidInput(ErrNotFound))
}
