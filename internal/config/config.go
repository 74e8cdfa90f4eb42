// Package config loads engine configuration from YAML with CYBERSAGE_*
// environment overrides and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Rick1330/cybersage/internal/types"
)

// Config is the root configuration for the workflow engine and its
// collaborators.
type Config struct {
	Engine    EngineConfig     `yaml:"engine"`
	Redis     RedisConfig      `yaml:"redis"`
	Audit     AuditConfig      `yaml:"audit"`
	Log       LogConfig        `yaml:"log"`
	Schedules []ScheduleConfig `yaml:"schedules,omitempty"`
}

// EngineConfig holds execution policy defaults applied to workflow
// definitions that do not set their own.
type EngineConfig struct {
	DefaultRetryCount int           `yaml:"default_retry_count"`
	DefaultTimeout    time.Duration `yaml:"default_timeout"`
	ContextTTL        time.Duration `yaml:"context_ttl"`
}

// RedisConfig selects and configures the Redis-backed context store.
// When disabled, the in-memory store is used.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// AuditConfig selects the audit sink backend.
type AuditConfig struct {
	// Backend is one of "slog", "sqlite", or "none".
	Backend string `yaml:"backend"`
	DBPath  string `yaml:"db_path,omitempty"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// ScheduleConfig declares one periodic workflow run: a cron expression
// and the path of the workflow definition file to instantiate per tick.
type ScheduleConfig struct {
	Name     string `yaml:"name"`
	Cron     string `yaml:"cron"`
	Workflow string `yaml:"workflow"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			DefaultRetryCount: 3,
			DefaultTimeout:    5 * time.Minute,
			ContextTTL:        time.Hour,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		Audit: AuditConfig{
			Backend: "slog",
			DBPath:  "cybersage_audit.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path, layering file values over the
// defaults and environment overrides over the file. An empty path skips
// the file and applies only defaults and environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, types.WrapError(types.CONFIG_LOAD_FAILED,
				fmt.Sprintf("failed to read config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, types.WrapError(types.CONFIG_PARSE_FAILED,
				fmt.Sprintf("failed to parse config file %s", path), err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays CYBERSAGE_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("CYBERSAGE_REDIS_ADDR"); v != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = v
	}
	if v := os.Getenv("CYBERSAGE_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CYBERSAGE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	if v := os.Getenv("CYBERSAGE_AUDIT_BACKEND"); v != "" {
		c.Audit.Backend = v
	}
	if v := os.Getenv("CYBERSAGE_AUDIT_DB_PATH"); v != "" {
		c.Audit.DBPath = v
	}
	if v := os.Getenv("CYBERSAGE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CYBERSAGE_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Engine.DefaultRetryCount < 1 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"engine.default_retry_count must be at least 1")
	}
	if c.Engine.DefaultTimeout <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"engine.default_timeout must be positive")
	}
	if c.Engine.ContextTTL <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"engine.context_ttl must be positive")
	}

	switch c.Audit.Backend {
	case "slog", "none":
	case "sqlite":
		if c.Audit.DBPath == "" {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				"audit.db_path is required for the sqlite backend")
		}
	default:
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unknown audit backend %q", c.Audit.Backend))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"redis.addr is required when redis is enabled")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	seen := make(map[string]bool, len(c.Schedules))
	for _, s := range c.Schedules {
		if s.Name == "" {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				"schedule name is required")
		}
		if seen[s.Name] {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("duplicate schedule name %q", s.Name))
		}
		seen[s.Name] = true
		if s.Cron == "" {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("schedule %q has no cron expression", s.Name))
		}
		if s.Workflow == "" {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("schedule %q has no workflow file", s.Name))
		}
	}

	return nil
}

// Logger builds a slog.Logger from the log configuration.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
