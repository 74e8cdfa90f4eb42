package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rick1330/cybersage/internal/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Engine.DefaultRetryCount)
	assert.Equal(t, 5*time.Minute, cfg.Engine.DefaultTimeout)
	assert.Equal(t, "slog", cfg.Audit.Backend)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/cybersage.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.NewError(types.CONFIG_LOAD_FAILED, ""))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  default_retry_count: 5
  default_timeout: 2m
  context_ttl: 30m
redis:
  enabled: true
  addr: redis.internal:6379
  db: 2
audit:
  backend: sqlite
  db_path: /var/lib/cybersage/audit.db
log:
  level: debug
  format: json
schedules:
  - name: nightly
    cron: "0 2 * * *"
    workflow: workflows/nightly.yaml
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Engine.DefaultRetryCount)
	assert.Equal(t, 2*time.Minute, cfg.Engine.DefaultTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Engine.ContextTTL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "sqlite", cfg.Audit.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Schedules, 1)
	assert.Equal(t, "nightly", cfg.Schedules[0].Name)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - ["), 0o600))

	_, err := Load(path)
	assert.ErrorIs(t, err, types.NewError(types.CONFIG_PARSE_FAILED, ""))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CYBERSAGE_REDIS_ADDR", "override:6379")
	t.Setenv("CYBERSAGE_REDIS_DB", "7")
	t.Setenv("CYBERSAGE_LOG_LEVEL", "error")
	t.Setenv("CYBERSAGE_AUDIT_BACKEND", "none")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "override:6379", cfg.Redis.Addr)
	assert.Equal(t, 7, cfg.Redis.DB)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "none", cfg.Audit.Backend)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero retry count", func(c *Config) { c.Engine.DefaultRetryCount = 0 }},
		{"zero timeout", func(c *Config) { c.Engine.DefaultTimeout = 0 }},
		{"zero context ttl", func(c *Config) { c.Engine.ContextTTL = 0 }},
		{"unknown audit backend", func(c *Config) { c.Audit.Backend = "kafka" }},
		{"sqlite without path", func(c *Config) { c.Audit.Backend = "sqlite"; c.Audit.DBPath = "" }},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
		{"unnamed schedule", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Cron: "* * * * *", Workflow: "w.yaml"}}
		}},
		{"duplicate schedule", func(c *Config) {
			c.Schedules = []ScheduleConfig{
				{Name: "a", Cron: "* * * * *", Workflow: "w.yaml"},
				{Name: "a", Cron: "* * * * *", Workflow: "w.yaml"},
			}
		}},
		{"schedule without cron", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Name: "a", Workflow: "w.yaml"}}
		}},
		{"schedule without workflow", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Name: "a", Cron: "* * * * *"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, types.NewError(types.CONFIG_VALIDATION_FAILED, ""))
		})
	}
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	logger := cfg.Logger()
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	cfg.Log.Format = "json"
	assert.NotNil(t, cfg.Logger())
}
