package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classable/classable/internal/database"
)

// TestDBOption customises the behaviour of MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	autoMigrate bool
	seedAdmin   bool
}

// SeedAdminEmail is the bootstrap superadmin identity used by test databases.
const SeedAdminEmail = "admin@classable.test"

// SeedAdminPassword pairs with SeedAdminEmail for authenticated test flows.
const SeedAdminPassword = "bootstrap-admin-pass-1"

// WithAutoMigrate enables automatic schema migration after opening the test database.
func WithAutoMigrate() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
	}
}

// WithSeedAdmin ensures migrations are applied and the bootstrap superadmin created.
func WithSeedAdmin() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
		cfg.seedAdmin = true
	}
}

// MustOpenTestDB opens a throwaway SQLite database for tests, applying
// optional migrations and seed data. Each test gets its own file under
// t.TempDir() so parallel tests never share state, and file-backed databases
// exercise the same transaction locking as production deployments. The
// connection is closed via t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := testDBConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := database.Open(database.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "classable.db"),
	})
	require.NoError(t, err)

	if cfg.seedAdmin {
		require.NoError(t, database.AutoMigrateAndSeed(db, SeedAdminEmail, SeedAdminPassword))
	} else if cfg.autoMigrate {
		require.NoError(t, database.AutoMigrate(db))
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
