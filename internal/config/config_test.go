package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"

database:
  url: "postgres://localhost/warmup_test"
  max_open_conns: 10

warmup:
  tick_interval_seconds: 600
  auto_pause_bounce_pct: 4.0

outcomes:
  poll_interval_seconds: 10
  batch_size: 100

lists:
  verify_webhook_url: "https://hooks.example.com/lists/verify"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, "postgres://localhost/warmup_test", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 10*time.Minute, cfg.Warmup.TickInterval())
	assert.Equal(t, 4.0, cfg.Warmup.AutoPauseBouncePct)
	assert.Equal(t, 10*time.Second, cfg.Outcomes.PollInterval())
	assert.Equal(t, 100, cfg.Outcomes.BatchSize)
	assert.Equal(t, "https://hooks.example.com/lists/verify", cfg.Lists.VerifyWebhookURL)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.Warmup.TickInterval())
	assert.Equal(t, 5.0, cfg.Warmup.AutoPauseBouncePct)
	assert.Equal(t, 0.1, cfg.Warmup.AutoPauseComplaintPct)
	assert.Equal(t, 500, cfg.Outcomes.BatchSize)
	assert.Equal(t, 7*24*time.Hour, cfg.Outcomes.DedupWindow())
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.SES.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DATABASE_URL", "postgres://env-host/warmup")
	t.Setenv("REDIS_URL", "redis://env-host:6379")
	t.Setenv("LIST_VERIFY_WEBHOOK_URL", "https://hooks.internal/verify")

	cfg, err := LoadFromEnv(writeConfig(t, `
server:
  port: 8080
database:
  url: "postgres://file-host/warmup"
`))
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "postgres://env-host/warmup", cfg.Database.URL)
	assert.Equal(t, "redis://env-host:6379", cfg.Redis.URL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "https://hooks.internal/verify", cfg.Lists.VerifyWebhookURL)
}
