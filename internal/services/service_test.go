package services

import (
	"testing"
	"time"

	"github.com/beatvault/backend/internal/config"
	"github.com/beatvault/backend/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every query on the same in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.Migrate(db))
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		ObjectChunkSize:     8, // tiny chunks so tests span many rows
		PurchasePendingTTL:  30 * time.Minute,
		PurchaseGraceWindow: 2 * time.Minute,
		BcryptCost:          4,
		FrontendURL:         "http://localhost:3000",
	}
}

func createTestUser(t *testing.T, db *gorm.DB, username string, isAdmin bool) *models.User {
	t.Helper()
	user := &models.User{
		Username:    username,
		Email:       username + "@example.com",
		Password:    "x",
		DisplayName: username,
		IsAdmin:     isAdmin,
		IsActive:    true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
