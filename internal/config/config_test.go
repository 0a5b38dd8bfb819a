package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("OWNER_ID", "42")
	t.Setenv("ADMIN_CHANNEL_ID", "-1001234567890")
	t.Setenv("MIDAS_API_KEY", "secret")
	t.Setenv("USE_MOCK_DB", "true")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, int64(42), cfg.OwnerID)
	assert.Equal(t, int64(-1001234567890), cfg.AdminChannelID)
	assert.Equal(t, "https://midasbuy-api.com/api/v1/pubg", cfg.MidasBaseURL)
	assert.Equal(t, 20*time.Second, cfg.MidasTimeout)
	assert.Equal(t, 10*time.Second, cfg.RateLimitInterval)
	assert.Equal(t, 5*time.Second, cfg.BulkStepDelay)
	assert.Equal(t, time.Second, cfg.LookupPause)
	assert.Equal(t, 30, cfg.TraderDefaultDays)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.WebhookMode)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, "Asia/Riyadh", cfg.Location().String())
}

func TestLoadFromEnv_MissingRequired(t *testing.T) {
	for _, name := range []string{"TELEGRAM_BOT_TOKEN", "OWNER_ID", "ADMIN_CHANNEL_ID", "MIDAS_API_KEY"} {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(name, "")

			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestLoadFromEnv_Webhook(t *testing.T) {
	setRequired(t)
	t.Setenv("WEBHOOK_MODE", "true")

	_, err := LoadFromEnv()
	require.Error(t, err)

	t.Setenv("WEBHOOK_URL", "https://bot.example.com")
	_, err = LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEBHOOK_SECRET")

	t.Setenv("WEBHOOK_SECRET", "not allowed!")
	_, err = LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEBHOOK_SECRET")

	t.Setenv("WEBHOOK_SECRET", "s3cret_token-1")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.WebhookMode)
	assert.Equal(t, "s3cret_token-1", cfg.WebhookSecret)
}

func TestLoadFromEnv_ClickHouseRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("USE_MOCK_DB", "false")

	_, err := LoadFromEnv()
	require.Error(t, err)

	t.Setenv("CLICKHOUSE_HOST", "localhost")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.ClickHousePort)
	assert.Equal(t, "default", cfg.ClickHouseDatabase)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("BULK_STEP_DELAY", "3s")
	t.Setenv("RATE_LIMIT_INTERVAL", "15s")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.BulkStepDelay)
	assert.Equal(t, 15*time.Second, cfg.RateLimitInterval)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	setRequired(t)
	t.Setenv("TIMEZONE", "Mars/Olympus")
	_, err := LoadFromEnv()
	assert.Error(t, err)

	setRequired(t)
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("OWNER_ID", "not-a-number")
	_, err = LoadFromEnv()
	assert.Error(t, err)
}
