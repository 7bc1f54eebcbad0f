package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/relaypost/relaypost-backend/internal/errors"
	"github.com/relaypost/relaypost-backend/internal/models"
	"github.com/relaypost/relaypost-backend/internal/provider"
	"github.com/relaypost/relaypost-backend/internal/repository"
)

// WatchManagerConfig holds configuration for the watch lifecycle manager
type WatchManagerConfig struct {
	// RenewalThreshold is how close to expiry a watch must be to get renewed
	RenewalThreshold time.Duration
	// CheckInterval is how often the background loop scans for expiring watches
	CheckInterval time.Duration
}

// RefreshResult is the per-mailbox outcome of one renewal scan
type RefreshResult struct {
	MailboxAddress string     `json:"mailbox_address"`
	Renewed        bool       `json:"renewed"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// RefreshSummary aggregates one renewal scan
type RefreshSummary struct {
	Refreshed int             `json:"refreshed"`
	Failed    int             `json:"failed"`
	Results   []RefreshResult `json:"results"`
}

// WatchManager owns the watch lifecycle: explicit start/stop at link time and
// proactive renewal before expiry. Watch state lives entirely in the
// connection record, so renewals survive restarts and work across instances.
type WatchManager struct {
	connections repository.ConnectionRepository
	provider    provider.Client
	config      WatchManagerConfig
	logger      *slog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewWatchManager creates a new WatchManager
func NewWatchManager(
	connections repository.ConnectionRepository,
	providerClient provider.Client,
	config WatchManagerConfig,
	logger *slog.Logger,
) *WatchManager {
	if config.RenewalThreshold <= 0 {
		config.RenewalThreshold = 24 * time.Hour
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = 24 * time.Hour
	}

	return &WatchManager{
		connections: connections,
		provider:    providerClient,
		config:      config,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// StartWatch registers a watch for a mailbox and persists the returned
// cursor and expiry. Re-registering before expiry replaces the outstanding
// watch server-side, so there is never more than one.
func (m *WatchManager) StartWatch(ctx context.Context, mailboxAddress string) (*models.MailboxConnection, error) {
	conn, err := m.connections.GetByAddress(ctx, mailboxAddress)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrConnectionNotFound
		}
		return nil, apperrors.Wrap(err, "failed to load connection")
	}
	if !conn.IsActive {
		return nil, apperrors.ErrConnectionInactive
	}

	watch, err := m.provider.RegisterWatch(ctx, conn)
	if err != nil {
		return nil, err
	}

	if err := m.connections.UpdateWatch(ctx, conn.ID, watch.Cursor, watch.ExpiresAt); err != nil {
		return nil, apperrors.Wrap(err, "failed to persist watch state")
	}

	conn.SyncCursor = watch.Cursor
	conn.WatchExpiresAt = &watch.ExpiresAt

	m.logger.Info("watch started",
		slog.String("mailbox", mailboxAddress),
		slog.Time("expires_at", watch.ExpiresAt),
		slog.String("cursor", watch.Cursor))
	return conn, nil
}

// StopWatch cancels the watch on a mailbox. The remote cancel is best-effort:
// a provider failure is logged and local state is cleared anyway.
func (m *WatchManager) StopWatch(ctx context.Context, mailboxAddress string) error {
	conn, err := m.connections.GetByAddress(ctx, mailboxAddress)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrConnectionNotFound
		}
		return apperrors.Wrap(err, "failed to load connection")
	}

	if err := m.provider.CancelWatch(ctx, conn); err != nil {
		m.logger.Warn("remote watch cancel failed, clearing local state anyway",
			slog.String("mailbox", mailboxAddress),
			slog.Any("error", err))
	}

	if err := m.connections.ClearWatch(ctx, conn.ID); err != nil {
		return apperrors.Wrap(err, "failed to clear watch state")
	}

	m.logger.Info("watch stopped", slog.String("mailbox", mailboxAddress))
	return nil
}

// Unlink deactivates a connection, cancelling its watch first. The
// connection row and its email logs are kept.
func (m *WatchManager) Unlink(ctx context.Context, mailboxAddress string) error {
	conn, err := m.connections.GetByAddress(ctx, mailboxAddress)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrConnectionNotFound
		}
		return apperrors.Wrap(err, "failed to load connection")
	}

	if conn.WatchExpiresAt != nil {
		if err := m.provider.CancelWatch(ctx, conn); err != nil {
			m.logger.Warn("remote watch cancel failed during unlink",
				slog.String("mailbox", mailboxAddress),
				slog.Any("error", err))
		}
		if err := m.connections.ClearWatch(ctx, conn.ID); err != nil {
			return apperrors.Wrap(err, "failed to clear watch state")
		}
	}

	if err := m.connections.Deactivate(ctx, conn.ID); err != nil {
		return apperrors.Wrap(err, "failed to deactivate connection")
	}

	m.logger.Info("connection unlinked", slog.String("mailbox", mailboxAddress))
	return nil
}

// RefreshExpiringWatches renews every active watch expiring within the
// renewal threshold. One mailbox's failure never stops the scan; the summary
// reports both outcomes per mailbox.
func (m *WatchManager) RefreshExpiringWatches(ctx context.Context) (*RefreshSummary, error) {
	cutoff := time.Now().Add(m.config.RenewalThreshold)
	expiring, err := m.connections.ListWatchedExpiringBefore(ctx, cutoff)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list expiring watches")
	}

	summary := &RefreshSummary{Results: []RefreshResult{}}
	for i := range expiring {
		conn := expiring[i]
		result := RefreshResult{MailboxAddress: conn.EmailAddress}

		watch, err := m.provider.RegisterWatch(ctx, &conn)
		if err == nil {
			err = m.connections.UpdateWatch(ctx, conn.ID, watch.Cursor, watch.ExpiresAt)
		}
		if err != nil {
			m.logger.Error("failed to renew watch",
				slog.String("mailbox", conn.EmailAddress),
				slog.Any("error", err))
			result.Error = err.Error()
			summary.Failed++
		} else {
			result.Renewed = true
			result.ExpiresAt = &watch.ExpiresAt
			summary.Refreshed++
			m.logger.Info("watch renewed",
				slog.String("mailbox", conn.EmailAddress),
				slog.Time("expires_at", watch.ExpiresAt))
		}

		summary.Results = append(summary.Results, result)
	}

	m.logger.Info("watch renewal scan completed",
		slog.Int("refreshed", summary.Refreshed),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

// Start begins the background renewal loop. Deployments with an external
// scheduler hitting the refresh endpoint can skip this.
func (m *WatchManager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.renewalLoop()

	m.logger.Info("watch renewal service started",
		slog.Duration("check_interval", m.config.CheckInterval),
		slog.Duration("renewal_threshold", m.config.RenewalThreshold))
}

// Stop gracefully stops the background renewal loop
func (m *WatchManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("watch renewal service stopped")
}

// IsRunning returns whether the renewal loop is currently running
func (m *WatchManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// renewalLoop periodically scans for expiring watches
func (m *WatchManager) renewalLoop() {
	defer m.wg.Done()

	// Run immediately on start
	m.runScan()

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runScan()
		}
	}
}

func (m *WatchManager) runScan() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := m.RefreshExpiringWatches(ctx); err != nil {
		m.logger.Error("watch renewal scan failed", slog.Any("error", err))
	}
}
