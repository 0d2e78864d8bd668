package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DOWNLOAD_DIR", "/tmp/downloads")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/downloads", cfg.DownloadDir)
	assert.Equal(t, HistoryBackendJSON, cfg.HistoryBackend)
	assert.Equal(t, "history.json", cfg.HistoryPath)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, time.Duration(0), cfg.KeepHistoryFor)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.Equal(t, 256, cfg.EventBuffer)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "127.0.0.1:9092", cfg.Web.BindAddress)
	assert.Equal(t, 30*time.Second, cfg.Web.ShutdownTimeout)
}

func TestLoadConfig_MissingDownloadDir(t *testing.T) {
	t.Setenv("DOWNLOAD_DIR", "")
	require.NoError(t, os.Unsetenv("DOWNLOAD_DIR"))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DOWNLOAD_DIR", "/srv/dl")
	t.Setenv("HISTORY_BACKEND", "sqlite")
	t.Setenv("HISTORY_LIMIT", "10")
	t.Setenv("KEEP_HISTORY_FOR", "720h")
	t.Setenv("WEB_BIND_ADDRESS", "0.0.0.0:8080")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, HistoryBackendSQLite, cfg.HistoryBackend)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, 720*time.Hour, cfg.KeepHistoryFor)
	assert.Equal(t, "0.0.0.0:8080", cfg.Web.BindAddress)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid json", func(c *Config) {}, false},
		{"valid sqlite", func(c *Config) { c.HistoryBackend = HistoryBackendSQLite }, false},
		{"unknown backend", func(c *Config) { c.HistoryBackend = "redis" }, true},
		{"zero limit", func(c *Config) { c.HistoryLimit = 0 }, true},
		{"negative buffer", func(c *Config) { c.EventBuffer = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{HistoryBackend: HistoryBackendJSON, HistoryLimit: 50, EventBuffer: 1}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			assert.Equal(t, tt.want, cfg.SlogLevel())
		})
	}
}
