package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the warmup engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	SES      SESConfig      `yaml:"ses"`
	Warmup   WarmupConfig   `yaml:"warmup"`
	Outcomes OutcomesConfig `yaml:"outcomes"`
	Lists    ListsConfig    `yaml:"lists"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis settings. Redis is optional; without it the
// engine falls back to in-process idempotency and PG advisory locks.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// SESConfig holds AWS SES credentials for domain identity checks.
type SESConfig struct {
	Enabled   bool   `yaml:"enabled"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
}

// WarmupConfig holds day lifecycle settings.
type WarmupConfig struct {
	TickIntervalSeconds   int     `yaml:"tick_interval_seconds"`
	AutoPauseBouncePct    float64 `yaml:"auto_pause_bounce_pct"`
	AutoPauseComplaintPct float64 `yaml:"auto_pause_complaint_pct"`
}

// TickInterval returns the tick cadence as a duration.
func (w WarmupConfig) TickInterval() time.Duration {
	return time.Duration(w.TickIntervalSeconds) * time.Second
}

// OutcomesConfig holds outcome ingestion settings.
type OutcomesConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	BatchSize           int `yaml:"batch_size"`
	DedupWindowHours    int `yaml:"dedup_window_hours"`
}

// PollInterval returns the fallback poll cadence as a duration.
func (o OutcomesConfig) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalSeconds) * time.Second
}

// DedupWindow returns the idempotency retention as a duration.
func (o OutcomesConfig) DedupWindow() time.Duration {
	return time.Duration(o.DedupWindowHours) * time.Hour
}

// ListsConfig holds the external list verification workflow settings.
// An empty webhook URL disables the notification.
type ListsConfig struct {
	VerifyWebhookURL string `yaml:"verify_webhook_url"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.Warmup.TickIntervalSeconds == 0 {
		cfg.Warmup.TickIntervalSeconds = 3600
	}
	if cfg.Warmup.AutoPauseBouncePct == 0 {
		cfg.Warmup.AutoPauseBouncePct = 5.0
	}
	if cfg.Warmup.AutoPauseComplaintPct == 0 {
		cfg.Warmup.AutoPauseComplaintPct = 0.1
	}
	if cfg.Outcomes.PollIntervalSeconds == 0 {
		cfg.Outcomes.PollIntervalSeconds = 30
	}
	if cfg.Outcomes.BatchSize == 0 {
		cfg.Outcomes.BatchSize = 500
	}
	if cfg.Outcomes.DedupWindowHours == 0 {
		cfg.Outcomes.DedupWindowHours = 168
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is read first, so secrets can live in .env
// locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if webhook := os.Getenv("LIST_VERIFY_WEBHOOK_URL"); webhook != "" {
		cfg.Lists.VerifyWebhookURL = webhook
	}

	return cfg, nil
}
