package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaypost/relaypost-backend/internal/models"
	"gorm.io/gorm"
)

// WebhookRepository defines the interface for webhook subscription data access
type WebhookRepository interface {
	Create(ctx context.Context, webhook *models.Webhook) error
	GetByID(ctx context.Context, id uint) (*models.Webhook, error)
	ListByConnection(ctx context.Context, connectionID uint) ([]models.Webhook, error)
	ListActiveForEvent(ctx context.Context, connectionID uint, eventType string) ([]models.Webhook, error)
	Delete(ctx context.Context, id uint) error
}

// webhookRepository implements WebhookRepository using GORM
type webhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new WebhookRepository instance
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

// Create creates a new webhook subscription
func (r *webhookRepository) Create(ctx context.Context, webhook *models.Webhook) error {
	result := r.db.WithContext(ctx).Create(webhook)
	if result.Error != nil {
		return fmt.Errorf("failed to create webhook: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a webhook by its ID
func (r *webhookRepository) GetByID(ctx context.Context, id uint) (*models.Webhook, error) {
	var webhook models.Webhook
	result := r.db.WithContext(ctx).First(&webhook, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get webhook: %w", result.Error)
	}
	return &webhook, nil
}

// ListByConnection retrieves all webhooks for a connection
func (r *webhookRepository) ListByConnection(ctx context.Context, connectionID uint) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	result := r.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Order("created_at ASC").
		Find(&webhooks)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", result.Error)
	}
	return webhooks, nil
}

// ListActiveForEvent retrieves active webhooks subscribed to the given event
// type. Event types live in a JSON column, so the type filter happens here
// rather than in SQL.
func (r *webhookRepository) ListActiveForEvent(ctx context.Context, connectionID uint, eventType string) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	result := r.db.WithContext(ctx).
		Where("connection_id = ? AND is_active = ?", connectionID, true).
		Order("created_at ASC").
		Find(&webhooks)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list active webhooks: %w", result.Error)
	}

	filtered := webhooks[:0]
	for i := range webhooks {
		if webhooks[i].SubscribesTo(eventType) {
			filtered = append(filtered, webhooks[i])
		}
	}
	return filtered, nil
}

// Delete deletes a webhook by its ID
func (r *webhookRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Webhook{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete webhook: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
