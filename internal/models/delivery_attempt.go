package models

import (
	"time"
)

// DeliveryOutcome classifies the result of one webhook delivery attempt
type DeliveryOutcome string

const (
	OutcomeSuccess      DeliveryOutcome = "success"
	OutcomeHTTPError    DeliveryOutcome = "http_error"
	OutcomeNetworkError DeliveryOutcome = "network_error"
)

// DeliveryAttempt records one fan-out call to one webhook for one event.
// Purely observability; at-least-once delivery does not depend on it.
type DeliveryAttempt struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	WebhookID uint            `gorm:"not null;index" json:"webhook_id"`
	EventID   string          `gorm:"not null;size:64;index" json:"event_id"`
	EventType string          `gorm:"not null;size:32" json:"event_type"`
	Outcome   DeliveryOutcome `gorm:"not null;size:16" json:"outcome"`
	// StatusCode is zero when the request never reached the endpoint
	StatusCode  int       `json:"status_code,omitempty"`
	ErrorDetail string    `gorm:"size:1024" json:"error_detail,omitempty"`
	AttemptedAt time.Time `gorm:"autoCreateTime" json:"attempted_at"`

	// Relationships
	Webhook Webhook `gorm:"foreignKey:WebhookID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for DeliveryAttempt
func (DeliveryAttempt) TableName() string {
	return "delivery_attempts"
}
