package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	pkgerrors "github.com/kevin07696/squareup-service/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Square      SquareConfig
	OrderStatus OrderStatusConfig
	Cron        CronConfig
	Admin       AdminConfig
	Session     SessionConfig
	SMTP        SMTPConfig
	Secrets     SecretsConfig
	RateLimit   RateLimitConfig
	Logger      LoggerConfig

	// StoreCurrency is the host store's default currency code
	StoreCurrency string `env:"STORE_CURRENCY" validate:"required,len=3"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST"`
	Port            int           `env:"SERVER_PORT" validate:"min=1,max=65535"`
	MetricsPort     int           `env:"METRICS_PORT" validate:"min=1,max=65535"`
	Environment     string        `env:"ENVIRONMENT" validate:"oneof=development staging production"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig holds PostgreSQL configuration. URL wins over the discrete fields.
type DatabaseConfig struct {
	URL          string        `env:"DATABASE_URL"`
	Host         string        `env:"DB_HOST"`
	Port         int           `env:"DB_PORT"`
	User         string        `env:"DB_USER"`
	Password     string        `env:"DB_PASSWORD"`
	Database     string        `env:"DB_NAME"`
	SSLMode      string        `env:"DB_SSL_MODE"`
	MaxConns     int32         `env:"DB_MAX_CONNS"`
	MinConns     int32         `env:"DB_MIN_CONNS"`
	QueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT"`
}

// RedisConfig holds the notification throttle store
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" validate:"required,hostname_port"`
	Username string `env:"REDIS_USERNAME"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`
}

// SquareConfig holds the payment network settings. The application credentials, sandbox
// token and webhook signature key, when set, are written to the settings store at startup.
type SquareConfig struct {
	ClientID            string `env:"SQUARE_CLIENT_ID"`
	ClientSecret        string `env:"SQUARE_CLIENT_SECRET"`
	SandboxToken        string `env:"SQUARE_SANDBOX_TOKEN"`
	WebhookSignatureKey string `env:"SQUARE_WEBHOOK_SIGNATURE_KEY"`

	Sandbox          bool   `env:"SQUARE_SANDBOX"`
	Debug            bool   `env:"SQUARE_DEBUG"`
	DelayCapture     bool   `env:"SQUARE_DELAY_CAPTURE"`
	WebhookURL       string `env:"SQUARE_WEBHOOK_URL" validate:"required,url"`
	OAuthRedirectURL string `env:"SQUARE_OAUTH_REDIRECT_URL" validate:"required,url"`
	OAuthSuccessURL  string `env:"SQUARE_OAUTH_SUCCESS_URL" validate:"omitempty,url"`
	BaseURL          string `env:"SQUARE_BASE_URL" validate:"omitempty,url"`
	SandboxBaseURL   string `env:"SQUARE_SANDBOX_BASE_URL" validate:"omitempty,url"`
}

// OrderStatusConfig maps payment outcomes to host order status ids; 0 disables the entry
type OrderStatusConfig struct {
	Authorized int `env:"ORDER_STATUS_AUTHORIZED"`
	Captured   int `env:"ORDER_STATUS_CAPTURED"`
	Voided     int `env:"ORDER_STATUS_VOIDED"`
	Failed     int `env:"ORDER_STATUS_FAILED"`
	Default    int `env:"ORDER_STATUS_DEFAULT"`
}

// CronConfig holds the scheduled tick settings
type CronConfig struct {
	Secret                 string        `env:"CRON_SECRET" validate:"required,min=16"`
	SummaryEmail           string        `env:"CRON_EMAIL" validate:"omitempty,email"`
	Interval               time.Duration `env:"CRON_INTERVAL"`
	NotifyRecurringSuccess bool          `env:"CRON_NOTIFY_RECURRING_SUCCESS"`
	NotifyRecurringFail    bool          `env:"CRON_NOTIFY_RECURRING_FAIL"`
}

// AdminConfig protects the connection management endpoints
type AdminConfig struct {
	User     string `env:"ADMIN_USER" validate:"required"`
	Password string `env:"ADMIN_PASSWORD" validate:"required,min=12"`
	Email    string `env:"ADMIN_EMAIL" validate:"omitempty,email"`
}

// SessionConfig holds the admin session cookie settings
type SessionConfig struct {
	Key    string `env:"SESSION_KEY" validate:"required,min=32"`
	Secure bool   `env:"SESSION_SECURE"`
}

// SMTPConfig holds the outgoing mail server
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     string `env:"SMTP_PORT"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	Sender   string `env:"SMTP_SENDER" validate:"omitempty,email"`
}

// SecretsConfig selects where sensitive settings are kept
type SecretsConfig struct {
	Backend   string        `env:"SECRETS_BACKEND" validate:"oneof=none local vault aws gcp"`
	Prefix    string        `env:"SECRETS_PREFIX"`
	CacheTTL  time.Duration `env:"SECRETS_CACHE_TTL"`
	LocalPath string        `env:"SECRETS_LOCAL_PATH" validate:"required_if=Backend local"`

	VaultAddress   string `env:"VAULT_ADDR" validate:"required_if=Backend vault"`
	VaultAuth      string `env:"VAULT_AUTH_METHOD" validate:"omitempty,oneof=token approle"`
	VaultToken     string `env:"VAULT_TOKEN"`
	VaultRoleID    string `env:"VAULT_ROLE_ID"`
	VaultSecretID  string `env:"VAULT_SECRET_ID"`
	VaultMountPath string `env:"VAULT_MOUNT_PATH"`
	VaultKVVersion string `env:"VAULT_KV_VERSION" validate:"omitempty,oneof=v1 v2"`
	VaultNamespace string `env:"VAULT_NAMESPACE"`

	AWSRegion   string `env:"AWS_REGION" validate:"required_if=Backend aws"`
	AWSProfile  string `env:"AWS_PROFILE"`
	AWSEndpoint string `env:"AWS_SECRETS_ENDPOINT" validate:"omitempty,url"`

	GCPProjectID string `env:"GCP_PROJECT_ID" validate:"required_if=Backend gcp"`
}

// RateLimitConfig throttles inbound webhook deliveries per client address
type RateLimitConfig struct {
	WebhookRPS   float64 `env:"WEBHOOK_RATE_LIMIT_RPS" validate:"gt=0"`
	WebhookBurst int     `env:"WEBHOOK_RATE_LIMIT_BURST" validate:"min=1"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Development bool   `env:"LOG_DEVELOPMENT"`
}

// Load reads an optional .env file and then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFromEnv()
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			MetricsPort:     getEnvAsInt("METRICS_PORT", 9090),
			Environment:     getEnv("ENVIRONMENT", "production"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: LoadDatabaseFromEnv(),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Square: SquareConfig{
			ClientID:            getEnv("SQUARE_CLIENT_ID", ""),
			ClientSecret:        getEnv("SQUARE_CLIENT_SECRET", ""),
			SandboxToken:        getEnv("SQUARE_SANDBOX_TOKEN", ""),
			WebhookSignatureKey: getEnv("SQUARE_WEBHOOK_SIGNATURE_KEY", ""),
			Sandbox:             getEnvAsBool("SQUARE_SANDBOX", false),
			Debug:               getEnvAsBool("SQUARE_DEBUG", false),
			DelayCapture:        getEnvAsBool("SQUARE_DELAY_CAPTURE", false),
			WebhookURL:          getEnv("SQUARE_WEBHOOK_URL", ""),
			OAuthRedirectURL:    getEnv("SQUARE_OAUTH_REDIRECT_URL", ""),
			OAuthSuccessURL:     getEnv("SQUARE_OAUTH_SUCCESS_URL", ""),
			BaseURL:             getEnv("SQUARE_BASE_URL", ""),
			SandboxBaseURL:      getEnv("SQUARE_SANDBOX_BASE_URL", ""),
		},
		OrderStatus: OrderStatusConfig{
			Authorized: getEnvAsInt("ORDER_STATUS_AUTHORIZED", 1),
			Captured:   getEnvAsInt("ORDER_STATUS_CAPTURED", 5),
			Voided:     getEnvAsInt("ORDER_STATUS_VOIDED", 16),
			Failed:     getEnvAsInt("ORDER_STATUS_FAILED", 10),
			Default:    getEnvAsInt("ORDER_STATUS_DEFAULT", 1),
		},
		Cron: CronConfig{
			Secret:                 getEnv("CRON_SECRET", ""),
			SummaryEmail:           getEnv("CRON_EMAIL", ""),
			Interval:               getEnvAsDuration("CRON_INTERVAL", 0),
			NotifyRecurringSuccess: getEnvAsBool("CRON_NOTIFY_RECURRING_SUCCESS", false),
			NotifyRecurringFail:    getEnvAsBool("CRON_NOTIFY_RECURRING_FAIL", true),
		},
		Admin: AdminConfig{
			User:     getEnv("ADMIN_USER", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Email:    getEnv("ADMIN_EMAIL", ""),
		},
		Session: SessionConfig{
			Key:    getEnv("SESSION_KEY", ""),
			Secure: getEnvAsBool("SESSION_SECURE", true),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnv("SMTP_PORT", "25"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			Sender:   getEnv("SMTP_SENDER", ""),
		},
		Secrets: SecretsConfig{
			Backend:        getEnv("SECRETS_BACKEND", "none"),
			Prefix:         getEnv("SECRETS_PREFIX", "squareup"),
			CacheTTL:       getEnvAsDuration("SECRETS_CACHE_TTL", 5*time.Minute),
			LocalPath:      getEnv("SECRETS_LOCAL_PATH", ""),
			VaultAddress:   getEnv("VAULT_ADDR", ""),
			VaultAuth:      getEnv("VAULT_AUTH_METHOD", "token"),
			VaultToken:     getEnv("VAULT_TOKEN", ""),
			VaultRoleID:    getEnv("VAULT_ROLE_ID", ""),
			VaultSecretID:  getEnv("VAULT_SECRET_ID", ""),
			VaultMountPath: getEnv("VAULT_MOUNT_PATH", "secret"),
			VaultKVVersion: getEnv("VAULT_KV_VERSION", "v2"),
			VaultNamespace: getEnv("VAULT_NAMESPACE", ""),
			AWSRegion:      getEnv("AWS_REGION", ""),
			AWSProfile:     getEnv("AWS_PROFILE", ""),
			AWSEndpoint:    getEnv("AWS_SECRETS_ENDPOINT", ""),
			GCPProjectID:   getEnv("GCP_PROJECT_ID", ""),
		},
		RateLimit: RateLimitConfig{
			WebhookRPS:   getEnvAsFloat("WEBHOOK_RATE_LIMIT_RPS", 10),
			WebhookBurst: getEnvAsInt("WEBHOOK_RATE_LIMIT_BURST", 20),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		StoreCurrency: strings.ToUpper(getEnv("STORE_CURRENCY", "USD")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabaseFromEnv reads only the database settings, for tools that need no other configuration
func LoadDatabaseFromEnv() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("DATABASE_URL", ""),
		Host:         getEnv("DB_HOST", "localhost"),
		Port:         getEnvAsInt("DB_PORT", 5432),
		User:         getEnv("DB_USER", "postgres"),
		Password:     getEnv("DB_PASSWORD", ""),
		Database:     getEnv("DB_NAME", "squareup"),
		SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		MaxConns:     int32(getEnvAsInt("DB_MAX_CONNS", 10)),
		MinConns:     int32(getEnvAsInt("DB_MIN_CONNS", 2)),
		QueryTimeout: getEnvAsDuration("DB_QUERY_TIMEOUT", 5*time.Second),
	}
}

// Validate checks the configuration. Failures are returned as pkg/errors.ValidationErrors
// naming the environment variables.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("env"); name != "" {
			return name
		}
		return field.Name
	})

	if err := v.Struct(c); err != nil {
		return pkgerrors.FromValidator(err)
	}
	if c.Database.URL == "" && c.Database.Password == "" {
		return pkgerrors.ValidationErrors{
			pkgerrors.NewValidationError("DB_PASSWORD", "is required when DATABASE_URL is not set"),
		}
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// ConnectionString returns the PostgreSQL URL
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
