package repository

import (
	"context"
	"fmt"

	"github.com/relaypost/relaypost-backend/internal/models"
	"gorm.io/gorm"
)

// DeliveryAttemptRepository records webhook delivery outcomes for observability
type DeliveryAttemptRepository interface {
	Create(ctx context.Context, attempt *models.DeliveryAttempt) error
	ListByWebhook(ctx context.Context, webhookID uint, limit, offset int) ([]models.DeliveryAttempt, int64, error)
}

type deliveryAttemptRepository struct {
	db *gorm.DB
}

// NewDeliveryAttemptRepository creates a new DeliveryAttemptRepository instance
func NewDeliveryAttemptRepository(db *gorm.DB) DeliveryAttemptRepository {
	return &deliveryAttemptRepository{db: db}
}

// Create records one delivery attempt
func (r *deliveryAttemptRepository) Create(ctx context.Context, attempt *models.DeliveryAttempt) error {
	result := r.db.WithContext(ctx).Create(attempt)
	if result.Error != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", result.Error)
	}
	return nil
}

// ListByWebhook retrieves delivery attempts for a webhook, newest first
func (r *deliveryAttemptRepository) ListByWebhook(ctx context.Context, webhookID uint, limit, offset int) ([]models.DeliveryAttempt, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.DeliveryAttempt{}).
		Where("webhook_id = ?", webhookID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count delivery attempts: %w", err)
	}

	var attempts []models.DeliveryAttempt
	result := r.db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		Order("attempted_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&attempts)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list delivery attempts: %w", result.Error)
	}
	return attempts, total, nil
}
