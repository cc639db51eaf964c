package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classable/classable/internal/models"
	"github.com/classable/classable/pkg/crypto"
)

func openTestDB(t *testing.T) Config {
	t.Helper()
	return Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "database_test.db"),
	}
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	cfg := openTestDB(t)
	cfg.Driver = ""

	db, err := Open(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", db.Dialector.Name())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestAutoMigrateAndSeed(t *testing.T) {
	db, err := Open(openTestDB(t))
	require.NoError(t, err)

	require.NoError(t, AutoMigrateAndSeed(db, "Root@Example.com", "bootstrap-secret-1"))

	var account models.Account
	require.NoError(t, db.First(&account, "email = ?", "root@example.com").Error)
	assert.True(t, account.IsActive)
	assert.True(t, crypto.VerifyPassword(account.Password, "bootstrap-secret-1"))

	var profile models.Profile
	require.NoError(t, db.First(&profile, "id = ?", account.ID).Error)
	assert.Equal(t, models.RoleSuperadmin, profile.Role)
	assert.True(t, profile.PasswordChanged)

	// Seeding again is a no-op once a superadmin exists.
	require.NoError(t, AutoMigrateAndSeed(db, "other@example.com", "another-secret-1"))

	var accounts int64
	require.NoError(t, db.Model(&models.Account{}).Count(&accounts).Error)
	assert.EqualValues(t, 1, accounts)
}

func TestAccountInsertPrecedesProfile(t *testing.T) {
	db, err := Open(openTestDB(t))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	// Accounts are always written before their profile row; the schema must
	// not constrain accounts on profiles.
	account := models.Account{Email: "solo@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(&account).Error)

	profile := models.Profile{ID: account.ID, Role: models.RoleStudent, IsActive: true}
	require.NoError(t, db.Create(&profile).Error)
}

func TestSeedSkippedWithoutAdminEmail(t *testing.T) {
	db, err := Open(openTestDB(t))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, SeedData(db, "", ""))

	var profiles int64
	require.NoError(t, db.Model(&models.Profile{}).Count(&profiles).Error)
	assert.Zero(t, profiles)
}

func TestSeedRequiresPassword(t *testing.T) {
	db, err := Open(openTestDB(t))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	err = SeedData(db, "root@example.com", "  ")
	require.Error(t, err)
}
