package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DB_DSN", "SESSION_DURATION_DAYS", "AUTOMATION_TIMEOUT", "WORKER_CONCURRENCY", "SKIP_SENTINEL"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "sqlite:./data/remote-control.db", cfg.DBDSN)
	assert.Equal(t, 30*24*time.Hour, cfg.SessionDuration)
	assert.Equal(t, 30*time.Second, cfg.AutomationTimeout)
	assert.Equal(t, 5*time.Second, cfg.AutomationPingTimeout)
	assert.Equal(t, 2, cfg.WorkerConcurrency)
	assert.Equal(t, "skip", cfg.SkipSentinel)
	assert.Equal(t, "cancel", cfg.CancelKeyword)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Run("durations accept seconds and go syntax", func(t *testing.T) {
		t.Setenv("AUTOMATION_TIMEOUT", "45")
		t.Setenv("CHAT_STATE_TTL", "90m")

		cfg := Load()
		assert.Equal(t, 45*time.Second, cfg.AutomationTimeout)
		assert.Equal(t, 90*time.Minute, cfg.ChatStateTTL)
	})

	t.Run("worker concurrency is clamped", func(t *testing.T) {
		t.Setenv("WORKER_CONCURRENCY", "500")
		assert.Equal(t, 50, Load().WorkerConcurrency)

		t.Setenv("WORKER_CONCURRENCY", "-1")
		assert.Equal(t, 2, Load().WorkerConcurrency)
	})

	t.Run("automation base url loses trailing slash", func(t *testing.T) {
		t.Setenv("AUTOMATION_BASE_URL", "https://n8n.example.com/")
		assert.Equal(t, "https://n8n.example.com", Load().AutomationBaseURL)
	})
}

func TestValidate(t *testing.T) {
	t.Run("production requires a real jwt secret", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		t.Setenv("JWT_SECRET", "")

		err := Load().Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET")
	})

	t.Run("bot roles need token and automation url", func(t *testing.T) {
		t.Setenv("TELEGRAM_BOT_TOKEN", "")
		t.Setenv("AUTOMATION_BASE_URL", "")
		require.Error(t, Load().ValidateBot())

		t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
		t.Setenv("AUTOMATION_BASE_URL", "http://localhost:5678")
		require.NoError(t, Load().ValidateBot())
	})
	t.Run("webhook mode needs a public url", func(t *testing.T) {
		t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
		t.Setenv("AUTOMATION_BASE_URL", "http://localhost:5678")
		t.Setenv("TELEGRAM_MODE", "Webhook")
		t.Setenv("TELEGRAM_WEBHOOK_URL", "")
		require.Error(t, Load().ValidateBot())

		t.Setenv("TELEGRAM_WEBHOOK_URL", "https://bot.example.com/telegram/webhook")
		require.NoError(t, Load().ValidateBot())

		t.Setenv("TELEGRAM_MODE", "carrier-pigeon")
		require.Error(t, Load().ValidateBot())
	})
}
