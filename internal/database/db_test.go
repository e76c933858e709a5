package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campuskit/notifier/internal/models"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	db, err := Open(Config{DSN: "file::memory:?cache=shared&_foreign_keys=1"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, sqlDB.Ping())
}

func TestAutoMigrateAndSeed(t *testing.T) {
	db, err := Open(Config{DSN: "file:seedtest?mode=memory&cache=shared&_foreign_keys=1"})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrateAndSeed(db))

	var count int64
	require.NoError(t, db.Model(&models.NotificationTemplate{}).
		Where("is_default = ?", true).Count(&count).Error)
	require.GreaterOrEqual(t, count, int64(5))

	// seeding twice must not duplicate templates
	require.NoError(t, SeedData(db))
	var again int64
	require.NoError(t, db.Model(&models.NotificationTemplate{}).Count(&again).Error)
	require.Equal(t, count, again)

	var defaults int64
	require.NoError(t, db.Model(&models.NotificationTemplate{}).
		Where("type = ? AND is_default = ?", models.TypeAssignmentDue, true).
		Count(&defaults).Error)
	require.Equal(t, int64(1), defaults)
}

func TestAutoMigrateAndSeedNilDB(t *testing.T) {
	require.Error(t, AutoMigrateAndSeed(nil))
}
