package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CLASSABLE_AUTH_JWT_SECRET", "env-secret")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, "static", cfg.Onboarding.Provider)
	assert.True(t, cfg.Maintenance.Enabled)
	assert.Equal(t, "@hourly", cfg.Maintenance.Schedule)
	assert.Equal(t, 180, cfg.Maintenance.AuditRetention)
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
auth:
  jwt_secret: file-secret
admin:
  email: boss@example.com
  password: boss-password
database:
  driver: postgres
  host: db.internal
  port: 5432
  name: classable
  user: classable
smtp:
  enabled: true
  host: smtp.internal
  port: 2525
  use_tls: true
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, cfg.SMTP.Enabled)
	assert.True(t, cfg.SMTP.UseTLS)
	assert.Equal(t, 2525, cfg.SMTP.Port)
}

func TestLoadConfigAdminPasswordRequiredWithEmail(t *testing.T) {
	t.Setenv("CLASSABLE_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("CLASSABLE_ADMIN_EMAIL", "root@example.com")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin.password")

	t.Setenv("CLASSABLE_ADMIN_PASSWORD", "root-password")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", cfg.Admin.Email)
}

func TestLoadConfigOpenAIProviderValidation(t *testing.T) {
	t.Setenv("CLASSABLE_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("CLASSABLE_ADMIN_PASSWORD", "pw")
	t.Setenv("CLASSABLE_ONBOARDING_PROVIDER", "openai")

	_, err := LoadConfig("")
	require.Error(t, err)

	t.Setenv("CLASSABLE_ONBOARDING_BASE_URL", "https://api.openai.com/v1")
	t.Setenv("CLASSABLE_ONBOARDING_MODEL", "gpt-4o-mini")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Onboarding.Provider)
}
