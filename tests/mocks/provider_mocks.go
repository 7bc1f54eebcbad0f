package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/relaypost/relaypost-backend/internal/models"
	"github.com/relaypost/relaypost-backend/internal/provider"
)

// MockProviderClient implements provider.Client
type MockProviderClient struct {
	mock.Mock
}

// RegisterWatch starts or replaces the watch on a mailbox
func (m *MockProviderClient) RegisterWatch(ctx context.Context, conn *models.MailboxConnection) (*provider.WatchInfo, error) {
	args := m.Called(ctx, conn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.WatchInfo), args.Error(1)
}

// CancelWatch stops the watch on a mailbox
func (m *MockProviderClient) CancelWatch(ctx context.Context, conn *models.MailboxConnection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

// FetchDelta returns the changes since the given cursor
func (m *MockProviderClient) FetchDelta(ctx context.Context, conn *models.MailboxConnection, cursor string) (*provider.Delta, error) {
	args := m.Called(ctx, conn, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Delta), args.Error(1)
}

// FetchMessage resolves one message reference to a full message
func (m *MockProviderClient) FetchMessage(ctx context.Context, conn *models.MailboxConnection, ref provider.MessageRef) (*provider.Message, error) {
	args := m.Called(ctx, conn, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Message), args.Error(1)
}

// SendMessage composes the wire-format message and submits it
func (m *MockProviderClient) SendMessage(ctx context.Context, conn *models.MailboxConnection, msg *provider.OutgoingMessage) (*provider.SendResult, error) {
	args := m.Called(ctx, conn, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.SendResult), args.Error(1)
}
