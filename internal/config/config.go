package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	HistoryBackendJSON   = "json"
	HistoryBackendSQLite = "sqlite"
)

// Config struct for environment variables.
type Config struct {
	DownloadDir       string        `envconfig:"DOWNLOAD_DIR" required:"true"`
	HistoryBackend    string        `envconfig:"HISTORY_BACKEND" default:"json"`
	HistoryPath       string        `envconfig:"HISTORY_PATH" default:"history.json"`
	DBPath            string        `envconfig:"DB_PATH" default:"downloads.db"`
	HistoryLimit      int           `envconfig:"HISTORY_LIMIT" default:"50"`
	KeepHistoryFor    time.Duration `envconfig:"KEEP_HISTORY_FOR" default:"0s"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`
	EventBuffer       int           `envconfig:"EVENT_BUFFER" default:"256"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"download_manager"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"127.0.0.1:9092"`
		Username        string        `split_words:"true"`
		Password        string        `split_words:"true"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"0s"`
		IdleTimeout     time.Duration `split_words:"true" default:"60s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values envconfig cannot express as tags.
func (c *Config) Validate() error {
	switch c.HistoryBackend {
	case HistoryBackendJSON, HistoryBackendSQLite:
	default:
		return fmt.Errorf("invalid history backend: %s", c.HistoryBackend)
	}

	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive, got %d", c.HistoryLimit)
	}

	if c.EventBuffer < 0 {
		return fmt.Errorf("event buffer must not be negative, got %d", c.EventBuffer)
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
