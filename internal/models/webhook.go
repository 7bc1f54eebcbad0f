package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Event types a webhook can subscribe to
const (
	EventEmailReceived = "email.received"
	EventEmailSent     = "email.sent"
)

// EventTypeList serializes a set of event types as a JSON column
type EventTypeList []string

// Value implements driver.Valuer
func (l EventTypeList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *EventTypeList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// Webhook is one subscriber endpoint for a mailbox connection. Deliveries to
// its URL are signed with the per-webhook secret.
type Webhook struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	ConnectionID uint          `gorm:"not null;index" json:"connection_id"`
	TargetURL    string        `gorm:"not null;size:2048" json:"target_url"`
	Secret       string        `gorm:"not null;size:255" json:"secret"`
	EventTypes   EventTypeList `gorm:"type:text;not null" json:"event_types"`
	IsActive     bool          `gorm:"default:true;index" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Connection MailboxConnection `gorm:"foreignKey:ConnectionID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for Webhook
func (Webhook) TableName() string {
	return "webhooks"
}

// SubscribesTo reports whether the webhook wants events of the given type
func (w *Webhook) SubscribesTo(eventType string) bool {
	for _, t := range w.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}
