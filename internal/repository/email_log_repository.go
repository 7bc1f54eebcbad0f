package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaypost/relaypost-backend/internal/models"
	"gorm.io/gorm"
)

// EmailLogRepository defines the interface for the append-only email log.
// Create returning ErrDuplicateEntry is the idempotency contract the sync
// engine relies on: the database constraint, not application logic, decides
// whether a provider message id has been seen.
type EmailLogRepository interface {
	Create(ctx context.Context, log *models.EmailLog) error
	Exists(ctx context.Context, connectionID uint, providerMessageID string) (bool, error)
	GetByID(ctx context.Context, id uint) (*models.EmailLog, error)
	ListByConnection(ctx context.Context, connectionID uint, limit, offset int) ([]models.EmailLog, int64, error)
	ListByThread(ctx context.Context, connectionID uint, threadID string) ([]models.EmailLog, error)
}

// emailLogRepository implements EmailLogRepository using GORM
type emailLogRepository struct {
	db *gorm.DB
}

// NewEmailLogRepository creates a new EmailLogRepository instance
func NewEmailLogRepository(db *gorm.DB) EmailLogRepository {
	return &emailLogRepository{db: db}
}

// Create appends one email log row. Returns ErrDuplicateEntry when the
// (connection, provider message id) pair was already recorded.
func (r *emailLogRepository) Create(ctx context.Context, log *models.EmailLog) error {
	result := r.db.WithContext(ctx).Create(log)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("message '%s' already recorded: %w", log.ProviderMessageID, ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create email log: %w", result.Error)
	}
	return nil
}

// Exists reports whether a provider message id was already recorded for the
// connection
func (r *emailLogRepository) Exists(ctx context.Context, connectionID uint, providerMessageID string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.EmailLog{}).
		Where("connection_id = ? AND provider_message_id = ?", connectionID, providerMessageID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check email log: %w", result.Error)
	}
	return count > 0, nil
}

// GetByID retrieves one email log row
func (r *emailLogRepository) GetByID(ctx context.Context, id uint) (*models.EmailLog, error) {
	var log models.EmailLog
	result := r.db.WithContext(ctx).First(&log, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email log: %w", result.Error)
	}
	return &log, nil
}

// ListByConnection retrieves email logs for a connection, newest first,
// with pagination
func (r *emailLogRepository) ListByConnection(ctx context.Context, connectionID uint, limit, offset int) ([]models.EmailLog, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.EmailLog{}).
		Where("connection_id = ?", connectionID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count email logs: %w", err)
	}

	var logs []models.EmailLog
	result := r.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Order("received_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list email logs: %w", result.Error)
	}
	return logs, total, nil
}

// ListByThread retrieves all messages of one thread in chronological order
func (r *emailLogRepository) ListByThread(ctx context.Context, connectionID uint, threadID string) ([]models.EmailLog, error) {
	var logs []models.EmailLog
	result := r.db.WithContext(ctx).
		Where("connection_id = ? AND thread_id = ?", connectionID, threadID).
		Order("received_at ASC, id ASC").
		Find(&logs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list thread messages: %w", result.Error)
	}
	return logs, nil
}
