package models

import (
	"time"
)

// MailboxConnection represents one linked, watchable mailbox. It owns the
// provider credential bundle and is the single source of truth for the sync
// cursor and the current watch state. A nil WatchExpiresAt means the mailbox
// is not currently watched.
type MailboxConnection struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OwnerID      string    `gorm:"not null;index;size:255" json:"owner_id"`
	EmailAddress string    `gorm:"uniqueIndex;not null;size:255" json:"email_address"`
	AccessToken  string    `gorm:"not null" json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"-"`

	SyncCursor     string     `gorm:"size:255" json:"sync_cursor,omitempty"`
	WatchExpiresAt *time.Time `json:"watch_expires_at,omitempty"`
	IsActive       bool       `gorm:"default:true;index" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Webhooks  []Webhook  `gorm:"foreignKey:ConnectionID;constraint:OnDelete:CASCADE" json:"-"`
	EmailLogs []EmailLog `gorm:"foreignKey:ConnectionID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for MailboxConnection
func (MailboxConnection) TableName() string {
	return "mailbox_connections"
}

// Watched reports whether the connection has a watch that has not expired
func (c *MailboxConnection) Watched(now time.Time) bool {
	return c.WatchExpiresAt != nil && c.WatchExpiresAt.After(now)
}

// TokenExpired reports whether the stored access token has expired,
// with a small skew so tokens about to expire are refreshed early
func (c *MailboxConnection) TokenExpired(now time.Time) bool {
	return !c.TokenExpiry.IsZero() && !c.TokenExpiry.After(now.Add(30*time.Second))
}
