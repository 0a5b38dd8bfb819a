package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// secretTokenPattern is the character set Telegram accepts for secret_token
var secretTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// Config holds the application configuration
type Config struct {
	TelegramToken  string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	OwnerID        int64  `envconfig:"OWNER_ID" required:"true"`
	AdminChannelID int64  `envconfig:"ADMIN_CHANNEL_ID" required:"true"`
	SupportContact string `envconfig:"SUPPORT_CONTACT"`

	// Midasbuy API
	MidasAPIKey  string        `envconfig:"MIDAS_API_KEY" required:"true"`
	MidasBaseURL string        `envconfig:"MIDAS_API_BASE_URL" default:"https://midasbuy-api.com/api/v1/pubg"`
	MidasTimeout time.Duration `envconfig:"MIDAS_TIMEOUT" default:"20s"`

	// Workflow pacing
	RateLimitInterval time.Duration `envconfig:"RATE_LIMIT_INTERVAL" default:"10s"`
	BulkStepDelay     time.Duration `envconfig:"BULK_STEP_DELAY" default:"5s"`
	LookupPause       time.Duration `envconfig:"LOOKUP_PAUSE" default:"1s"`
	TraderDefaultDays int           `envconfig:"TRADER_DEFAULT_DAYS" default:"30"`
	Timezone          string        `envconfig:"TIMEZONE" default:"Asia/Riyadh"`

	// Bot mode configuration
	WebhookMode bool   `envconfig:"WEBHOOK_MODE"` // If true, use webhook mode; if false, use polling mode
	WebhookURL  string `envconfig:"WEBHOOK_URL"`  // Required if WebhookMode is true
	// WebhookSecret is echoed by Telegram in X-Telegram-Bot-Api-Secret-Token
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
	Port          string `envconfig:"PORT" default:"8080"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`

	// ClickHouse configuration
	ClickHouseHost     string `envconfig:"CLICKHOUSE_HOST"`
	ClickHousePort     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	ClickHouseDatabase string `envconfig:"CLICKHOUSE_DATABASE" default:"default"`
	ClickHouseUser     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	ClickHousePassword string `envconfig:"CLICKHOUSE_PASSWORD"`
	ClickHouseUseTLS   bool   `envconfig:"CLICKHOUSE_USE_TLS"`

	UseMockDB bool `envconfig:"USE_MOCK_DB"`

	// Redis backs the shared rate limiter; empty keeps it in memory
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB"`

	location *time.Location
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}
	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	// required only rejects unset variables, not empty ones
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if config.MidasAPIKey == "" {
		return nil, fmt.Errorf("MIDAS_API_KEY is required")
	}

	if config.WebhookMode && config.WebhookURL == "" {
		return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
	}
	if config.WebhookMode && config.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_MODE is true")
	}
	if config.WebhookSecret != "" && !secretTokenPattern.MatchString(config.WebhookSecret) {
		return nil, fmt.Errorf("WEBHOOK_SECRET must be 1-256 characters of A-Z, a-z, 0-9, _ and -")
	}

	if !config.UseMockDB && config.ClickHouseHost == "" {
		return nil, fmt.Errorf("CLICKHOUSE_HOST is required when USE_MOCK_DB is not set")
	}

	if config.OwnerID <= 0 {
		return nil, fmt.Errorf("OWNER_ID must be a positive Telegram user ID")
	}

	if config.TraderDefaultDays <= 0 {
		return nil, fmt.Errorf("TRADER_DEFAULT_DAYS must be positive, got %d", config.TraderDefaultDays)
	}

	if config.MidasTimeout <= 0 {
		return nil, fmt.Errorf("MIDAS_TIMEOUT must be positive")
	}

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", config.Timezone, err)
	}
	config.location = loc

	return config, nil
}

// Location is the time zone used to render dates to users
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
