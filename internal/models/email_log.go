package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Direction indicates whether a logged message was received or sent
type Direction string

const (
	DirectionReceived Direction = "received"
	DirectionSent     Direction = "sent"
)

// Recipient is one address in a recipient list
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// AttachmentMeta describes one attachment of a logged message. Content is
// never stored here, only metadata.
type AttachmentMeta struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// RecipientList serializes a recipient slice as a JSON column
type RecipientList []Recipient

// Value implements driver.Valuer
func (l RecipientList) Value() (driver.Value, error) {
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
func (l *RecipientList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// AttachmentList serializes attachment metadata as a JSON column
type AttachmentList []AttachmentMeta

// Value implements driver.Valuer
func (l AttachmentList) Value() (driver.Value, error) {
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
func (l *AttachmentList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}

// EmailLog is the durable record of one observed message. It doubles as the
// idempotency ledger: the composite unique index on
// (connection_id, provider_message_id) is what suppresses reprocessing when
// the provider redelivers a notification. Rows are append-only.
type EmailLog struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ConnectionID      uint      `gorm:"not null;index;uniqueIndex:idx_email_logs_conn_msg" json:"connection_id"`
	ProviderMessageID string    `gorm:"not null;size:255;uniqueIndex:idx_email_logs_conn_msg" json:"provider_message_id"`
	ThreadID          string    `gorm:"size:255;index" json:"thread_id,omitempty"`
	Direction         Direction `gorm:"not null;size:16;default:received" json:"direction"`

	FromEmail    string        `gorm:"size:255" json:"from_email"`
	FromName     string        `gorm:"size:255" json:"from_name,omitempty"`
	ToRecipients RecipientList `gorm:"type:text" json:"to_recipients"`
	Subject      string        `json:"subject,omitempty"`
	Snippet      string        `gorm:"size:255" json:"snippet,omitempty"`
	BodyText     string        `json:"body_text,omitempty"`
	BodyHTML     string        `json:"body_html,omitempty"`

	MessageIDHeader  string `gorm:"size:998" json:"message_id_header,omitempty"`
	InReplyTo        string `gorm:"size:998" json:"in_reply_to,omitempty"`
	ReferencesHeader string `json:"references,omitempty"`

	Attachments AttachmentList `gorm:"type:text" json:"attachments,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relationships
	Connection MailboxConnection `gorm:"foreignKey:ConnectionID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for EmailLog
func (EmailLog) TableName() string {
	return "email_logs"
}
