package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/classable/classable/internal/database"
	"github.com/classable/classable/internal/services"
	"github.com/classable/classable/pkg/mail"
)

// Config is the full application configuration, loaded from an optional
// YAML file and CLASSABLE_-prefixed environment variables.
type Config struct {
	Server      ServerConfig           `mapstructure:"server"`
	Database    database.Config        `mapstructure:"database"`
	Auth        AuthConfig             `mapstructure:"auth"`
	Admin       AdminConfig            `mapstructure:"admin"`
	SMTP        mail.SMTPSettings      `mapstructure:"smtp"`
	Billing     services.BillingConfig `mapstructure:"billing"`
	Storage     services.StorageConfig `mapstructure:"storage"`
	Onboarding  OnboardingConfig       `mapstructure:"onboarding"`
	Logging     LoggingConfig          `mapstructure:"logging"`
	Maintenance MaintenanceConfig      `mapstructure:"maintenance"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	BaseURL         string        `mapstructure:"base_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTIssuer      string        `mapstructure:"jwt_issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// AdminConfig seeds the bootstrap superadmin on first start.
type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type OnboardingConfig struct {
	Provider string        `mapstructure:"provider"` // "openai" or "static"
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

type MaintenanceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Schedule       string `mapstructure:"schedule"`
	AuditRetention int    `mapstructure:"audit_retention_days"`
}

// LoadConfig reads configuration from the given file (optional) plus the
// environment and applies defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/classable.db")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dsn", "")

	// Empty defaults register the keys so AutomaticEnv can populate them
	// during Unmarshal.
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "classable")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)

	v.SetDefault("admin.email", "admin@classable.local")
	v.SetDefault("admin.password", "")

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@classable.local")
	v.SetDefault("smtp.use_tls", false)

	v.SetDefault("billing.secret_key", "")
	v.SetDefault("billing.webhook_secret", "")
	v.SetDefault("billing.success_url", "")
	v.SetDefault("billing.cancel_url", "")

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "classable-materials")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.url_expiry", 15*time.Minute)

	v.SetDefault("onboarding.provider", "static")
	v.SetDefault("onboarding.base_url", "")
	v.SetDefault("onboarding.api_key", "")
	v.SetDefault("onboarding.model", "")
	v.SetDefault("onboarding.timeout", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "@hourly")
	v.SetDefault("maintenance.audit_retention_days", 180)

	v.SetEnvPrefix("CLASSABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required (set CLASSABLE_AUTH_JWT_SECRET)")
	}
	if c.Admin.Email != "" && c.Admin.Password == "" {
		return fmt.Errorf("admin.password is required when admin.email is set")
	}
	if c.Onboarding.Provider == "openai" {
		if c.Onboarding.BaseURL == "" || c.Onboarding.Model == "" {
			return fmt.Errorf("onboarding.base_url and onboarding.model are required for the openai provider")
		}
	}
	return nil
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
