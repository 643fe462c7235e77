package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8099", cfg.Server.Port)
	assert.Equal(t, 7, cfg.Settlement.HoldPeriodDays)
	assert.Equal(t, time.Hour, cfg.Scheduler.PendingSweepInterval)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.RetrySweepInterval)
	assert.Equal(t, 1000, cfg.Settlement.MaxBatchSize)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
server:
  port: "9000"
settlement:
  hold_period_days: 3
  max_retries: 5
  supported_currencies: [INR]
scheduler:
  pending_sweep_interval: 2h
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SETTLEMENT_MAX_RETRIES", "2")
	t.Setenv("SETTLEMENT_CURRENCIES", "INR,USD")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "whsec")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Settlement.HoldPeriodDays)
	assert.Equal(t, 2, cfg.Settlement.MaxRetries, "env wins over file")
	assert.Equal(t, []string{"INR", "USD"}, cfg.Settlement.SupportedCurrencies)
	assert.Equal(t, 2*time.Hour, cfg.Scheduler.PendingSweepInterval)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "whsec", cfg.Payout.WebhookSecret)
	assert.Equal(t, "0.05", cfg.Settlement.CommissionRate, "unset keys keep defaults")
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	_, err := Load()
	require.Error(t, err)

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	require.Error(t, err)
}
