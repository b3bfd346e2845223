// Package config provides application configuration management using Viper.
// It supports loading from environment variables, config files, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	App       AppConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	Support   SupportConfig
	Backstage BackstageConfig
	Storage   StorageConfig
	Quote     QuoteConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Addr returns the listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	Name                  string
	SSLMode               string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
	// AutoMigrate applies embedded migrations on startup.
	AutoMigrate bool
}

// ConnectionString returns a PostgreSQL connection string.
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// AuthConfig holds operator session settings.
type AuthConfig struct {
	SessionDuration time.Duration
	CookieName      string
	CookieSecure    bool
}

// AppConfig holds general application settings.
type AppConfig struct {
	PublicURL string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// SupportConfig drives the Andrebot conversation.
type SupportConfig struct {
	// TypingDelay is the minimum time an identification reply takes.
	TypingDelay time.Duration
	// PollInterval is used by the console chat viewer.
	PollInterval      time.Duration
	KnowledgeBaseFile string
	CatalogURL        string
	WhatsAppURL       string
}

// BackstageConfig holds the tenant fan-out settings.
type BackstageConfig struct {
	TenantTimeout time.Duration
	ActivityPath  string
	HealthPath    string
	// BreakerThreshold is the number of consecutive failures before a tenant is skipped.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// StorageConfig holds upload storage settings.
type StorageConfig struct {
	UploadDir      string
	PublicPath     string
	MaxUploadBytes int64
}

// QuoteConfig holds quote document settings.
type QuoteConfig struct {
	MaxSuggestedDiscount float64
	CompanyName          string
	CompanyEmail         string
	CompanyPhone         string
	ValidityDays         int
	// MaxConcurrentRenders bounds simultaneous PDF renders.
	MaxConcurrentRenders int
}

// Load reads configuration from environment variables and config files.
// Environment variables take precedence over config file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/backstage")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(envReplacer())

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFoundErr) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envReplacer maps nested keys to env names: support.typing_delay -> SUPPORT_TYPING_DELAY.
func envReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			Environment:  v.GetString("server.env"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			IdleTimeout:  v.GetDuration("server.idle_timeout"),
		},
		Database: DatabaseConfig{
			Host:                  v.GetString("database.host"),
			Port:                  v.GetInt("database.port"),
			User:                  v.GetString("database.user"),
			Password:              v.GetString("database.password"),
			Name:                  v.GetString("database.name"),
			SSLMode:               v.GetString("database.sslmode"),
			MaxConnections:        v.GetInt("database.max_connections"),
			MaxIdleConnections:    v.GetInt("database.max_idle_connections"),
			ConnectionMaxLifetime: v.GetDuration("database.connection_max_lifetime"),
			AutoMigrate:           v.GetBool("database.auto_migrate"),
		},
		Auth: AuthConfig{
			SessionDuration: v.GetDuration("session.duration"),
			CookieName:      v.GetString("session.cookie_name"),
			CookieSecure:    v.GetBool("session.cookie_secure"),
		},
		App: AppConfig{
			PublicURL: strings.TrimRight(v.GetString("app.public_url"), "/"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("rate_limit.requests"),
			Window:   v.GetDuration("rate_limit.window"),
		},
		Support: SupportConfig{
			TypingDelay:       v.GetDuration("support.typing_delay"),
			PollInterval:      v.GetDuration("support.poll_interval"),
			KnowledgeBaseFile: v.GetString("support.knowledge_base_file"),
			CatalogURL:        v.GetString("support.catalog_url"),
			WhatsAppURL:       v.GetString("support.whatsapp_url"),
		},
		Backstage: BackstageConfig{
			TenantTimeout:    v.GetDuration("backstage.tenant_timeout"),
			ActivityPath:     v.GetString("backstage.activity_path"),
			HealthPath:       v.GetString("backstage.health_path"),
			BreakerThreshold: v.GetInt("backstage.breaker_threshold"),
			BreakerCooldown:  v.GetDuration("backstage.breaker_cooldown"),
		},
		Storage: StorageConfig{
			UploadDir:      v.GetString("storage.upload_dir"),
			PublicPath:     v.GetString("storage.public_path"),
			MaxUploadBytes: v.GetInt64("storage.max_upload_bytes"),
		},
		Quote: QuoteConfig{
			MaxSuggestedDiscount: v.GetFloat64("quote.max_suggested_discount"),
			CompanyName:          v.GetString("quote.company_name"),
			CompanyEmail:         v.GetString("quote.company_email"),
			CompanyPhone:         v.GetString("quote.company_phone"),
			ValidityDays:         v.GetInt("quote.validity_days"),
			MaxConcurrentRenders: v.GetInt("quote.max_concurrent_renders"),
		},
	}
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "backstage")
	v.SetDefault("database.name", "backstage")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_connections", 5)
	v.SetDefault("database.connection_max_lifetime", "5m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("session.duration", "12h")
	v.SetDefault("session.cookie_name", "backstage_session")
	v.SetDefault("session.cookie_secure", false)

	v.SetDefault("app.public_url", "http://localhost:8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("rate_limit.requests", 120)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("support.typing_delay", "1200ms")
	v.SetDefault("support.poll_interval", "2500ms")
	v.SetDefault("support.catalog_url", "https://andres.dev/catalogo")
	v.SetDefault("support.whatsapp_url", "https://wa.me/573000000000")

	v.SetDefault("backstage.tenant_timeout", "8s")
	v.SetDefault("backstage.activity_path", "/api/andres/actividad")
	v.SetDefault("backstage.health_path", "/api/andres/salud")
	v.SetDefault("backstage.breaker_threshold", 3)
	v.SetDefault("backstage.breaker_cooldown", "1m")

	v.SetDefault("storage.upload_dir", "./data/uploads")
	v.SetDefault("storage.public_path", "/uploads")
	v.SetDefault("storage.max_upload_bytes", 10<<20)

	v.SetDefault("quote.max_suggested_discount", 15)
	v.SetDefault("quote.company_name", "Andrés Software Studio")
	v.SetDefault("quote.validity_days", 30)
	v.SetDefault("quote.max_concurrent_renders", 4)
}

// Validate checks that all required configuration values are present.
func (c *Config) Validate() error {
	var missing []string

	if c.Database.Password == "" {
		missing = append(missing, "DATABASE_PASSWORD")
	}
	if c.App.PublicURL == "" {
		missing = append(missing, "APP_PUBLIC_URL")
	}
	if c.Storage.UploadDir == "" {
		missing = append(missing, "STORAGE_UPLOAD_DIR")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Backstage.TenantTimeout <= 0 {
		return fmt.Errorf("backstage.tenant_timeout must be positive, got %s", c.Backstage.TenantTimeout)
	}
	if c.Quote.MaxSuggestedDiscount < 0 || c.Quote.MaxSuggestedDiscount > 100 {
		return fmt.Errorf("quote.max_suggested_discount must be within [0,100], got %v", c.Quote.MaxSuggestedDiscount)
	}
	if c.IsProduction() && !c.Auth.CookieSecure {
		return fmt.Errorf("session.cookie_secure must be enabled in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
