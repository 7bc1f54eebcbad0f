package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/relaypost/relaypost-backend/internal/models"
)

func TestValidateSSLMode(t *testing.T) {
	assert.Error(t, validateSSLMode("postgres://u:p@host:5432/db?sslmode=disable"))
	assert.NoError(t, validateSSLMode("postgres://u:p@host:5432/db?sslmode=require"))
	assert.NoError(t, validateSSLMode("postgres://u:p@host:5432/db"))
}

func TestMigrate_CreatesSchema(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))

	assert.True(t, db.Migrator().HasTable(&models.MailboxConnection{}))
	assert.True(t, db.Migrator().HasTable(&models.EmailLog{}))
	assert.True(t, db.Migrator().HasTable(&models.Webhook{}))
	assert.True(t, db.Migrator().HasTable(&models.DeliveryAttempt{}))

	// the idempotency constraint for the notification pipeline
	assert.True(t, db.Migrator().HasIndex(&models.EmailLog{}, "idx_email_logs_conn_msg"))
}

func TestConfigureConnectionPool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, configureConnectionPool(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxOpenConns, sqlDB.Stats().MaxOpenConnections)
}
