// Package testutil holds fixtures shared by repository and service tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"anoa.com/friendline/internal/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection serialises access, so goroutines sharing it never see
// "database is locked".
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:friendline_%d?mode=memory&cache=shared&_foreign_keys=1", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(entity.All()...))
	return db
}

// CreateProfile inserts a profile whose display name is derived from username.
func CreateProfile(t *testing.T, db *gorm.DB, username string) *entity.Profile {
	t.Helper()

	p := &entity.Profile{
		ID:          uuid.New(),
		Username:    username,
		DisplayName: strings.ToUpper(username[:1]) + username[1:],
	}
	require.NoError(t, db.WithContext(context.Background()).Create(p).Error)
	return p
}

// Befriend stores both accepted edges between a and b.
func Befriend(t *testing.T, db *gorm.DB, a, b *entity.Profile) {
	t.Helper()

	require.NoError(t, db.Create(&[]entity.FollowEdge{
		{FollowerID: a.ID, FollowingID: b.ID, Status: entity.FollowAccepted},
		{FollowerID: b.ID, FollowingID: a.ID, Status: entity.FollowAccepted},
	}).Error)
}

// Notifications returns every notification addressed to recipient, oldest first.
func Notifications(t *testing.T, db *gorm.DB, recipient uuid.UUID) []entity.Notification {
	t.Helper()

	var out []entity.Notification
	require.NoError(t, db.Where("recipient_id = ?", recipient).Order("created_at asc, id asc").Find(&out).Error)
	return out
}
