package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Search   SearchConfig   `yaml:"search"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig configures iTunes Search API usage.
type SearchConfig struct {
	Country      string `yaml:"country"`       // default storefront
	Limit        int    `yaml:"limit"`         // competitors fetched per keyword
	RequestDelay string `yaml:"request_delay"` // pause between API calls
}

// ParseRequestDelay returns the inter-request pause as time.Duration.
func (s SearchConfig) ParseRequestDelay() time.Duration {
	d, err := time.ParseDuration(s.RequestDelay)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// ScheduleConfig configures the auto-refresh loop.
type ScheduleConfig struct {
	CheckInterval string `yaml:"check_interval"` // how often to look for stale keywords
	RetentionDays int    `yaml:"retention_days"` // result history kept this long
}

// ParseCheckInterval returns the staleness check interval as time.Duration.
func (s ScheduleConfig) ParseCheckInterval() time.Duration {
	d, err := time.ParseDuration(s.CheckInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

// AlertsConfig configures alert destinations and triggers.
type AlertsConfig struct {
	RankThreshold int           `yaml:"rank_threshold"` // notify when a rank moves this many places
	Slack         SlackConfig   `yaml:"slack"`
	Webhook       WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./asoradar.db"},
		Search: SearchConfig{
			Country:      "us",
			Limit:        50,
			RequestDelay: "2s",
		},
		Schedule: ScheduleConfig{
			CheckInterval: "1h",
			RetentionDays: 90,
		},
		Alerts: AlertsConfig{RankThreshold: 5},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ASORADAR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ASORADAR_COUNTRY"); v != "" {
		cfg.Search.Country = v
	}
	if v := os.Getenv("ASORADAR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
	if v := os.Getenv("ALERT_WEBHOOK_SECRET"); v != "" {
		cfg.Alerts.Webhook.Secret = v
	}
}
