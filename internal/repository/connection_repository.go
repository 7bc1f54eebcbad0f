package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relaypost/relaypost-backend/internal/models"
	"gorm.io/gorm"
)

// ConnectionRepository defines the interface for mailbox connection data access.
// The cursor and watch columns it manages are the persisted watch state: no
// watch bookkeeping lives in process memory.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *models.MailboxConnection) error
	GetByID(ctx context.Context, id uint) (*models.MailboxConnection, error)
	GetByAddress(ctx context.Context, emailAddress string) (*models.MailboxConnection, error)
	ListActive(ctx context.Context) ([]models.MailboxConnection, error)
	ListWatchedExpiringBefore(ctx context.Context, cutoff time.Time) ([]models.MailboxConnection, error)
	UpdateCursor(ctx context.Context, id uint, cursor string) error
	UpdateWatch(ctx context.Context, id uint, cursor string, expiresAt time.Time) error
	ClearWatch(ctx context.Context, id uint) error
	UpdateTokens(ctx context.Context, id uint, accessToken, refreshToken string, expiry time.Time) error
	Deactivate(ctx context.Context, id uint) error
}

// connectionRepository implements ConnectionRepository using GORM
type connectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository creates a new ConnectionRepository instance
func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

// Create creates a new mailbox connection
func (r *connectionRepository) Create(ctx context.Context, conn *models.MailboxConnection) error {
	result := r.db.WithContext(ctx).Create(conn)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("connection for '%s' already exists: %w", conn.EmailAddress, ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create connection: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a connection by its ID
func (r *connectionRepository) GetByID(ctx context.Context, id uint) (*models.MailboxConnection, error) {
	var conn models.MailboxConnection
	result := r.db.WithContext(ctx).First(&conn, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection by ID: %w", result.Error)
	}
	return &conn, nil
}

// GetByAddress retrieves a connection by its mailbox address
func (r *connectionRepository) GetByAddress(ctx context.Context, emailAddress string) (*models.MailboxConnection, error) {
	var conn models.MailboxConnection
	result := r.db.WithContext(ctx).Where("email_address = ?", emailAddress).First(&conn)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection by address: %w", result.Error)
	}
	return &conn, nil
}

// ListActive retrieves all active connections
func (r *connectionRepository) ListActive(ctx context.Context) ([]models.MailboxConnection, error) {
	var conns []models.MailboxConnection
	result := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&conns)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list active connections: %w", result.Error)
	}
	return conns, nil
}

// ListWatchedExpiringBefore retrieves active connections whose watch expires
// at or before the cutoff. Connections that were never watched (NULL expiry)
// are not included; watch initiation is an explicit operation.
func (r *connectionRepository) ListWatchedExpiringBefore(ctx context.Context, cutoff time.Time) ([]models.MailboxConnection, error) {
	var conns []models.MailboxConnection
	result := r.db.WithContext(ctx).
		Where("is_active = ? AND watch_expires_at IS NOT NULL AND watch_expires_at <= ?", true, cutoff).
		Order("watch_expires_at ASC").
		Find(&conns)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list expiring watches: %w", result.Error)
	}
	return conns, nil
}

// UpdateCursor persists a new sync cursor for a connection
func (r *connectionRepository) UpdateCursor(ctx context.Context, id uint, cursor string) error {
	result := r.db.WithContext(ctx).Model(&models.MailboxConnection{}).
		Where("id = ?", id).
		Update("sync_cursor", cursor)
	if result.Error != nil {
		return fmt.Errorf("failed to update cursor: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateWatch atomically replaces the stored cursor and watch expiry in one
// statement, so a renewal can never leave a half-updated watch behind.
func (r *connectionRepository) UpdateWatch(ctx context.Context, id uint, cursor string, expiresAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.MailboxConnection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_cursor":      cursor,
			"watch_expires_at": expiresAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update watch: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearWatch marks a connection as unwatched
func (r *connectionRepository) ClearWatch(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.MailboxConnection{}).
		Where("id = ?", id).
		Update("watch_expires_at", nil)
	if result.Error != nil {
		return fmt.Errorf("failed to clear watch: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTokens persists a refreshed credential bundle
func (r *connectionRepository) UpdateTokens(ctx context.Context, id uint, accessToken, refreshToken string, expiry time.Time) error {
	updates := map[string]interface{}{
		"access_token": accessToken,
		"token_expiry": expiry,
	}
	// Providers do not always return a new refresh token; keep the old one then
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	result := r.db.WithContext(ctx).Model(&models.MailboxConnection{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update tokens: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate marks a connection inactive. Connections are never deleted so
// the email log history stays intact.
func (r *connectionRepository) Deactivate(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.MailboxConnection{}).
		Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate connection: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
