package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "tools", cfg.ToolsDir)
	assert.Equal(t, "ytdlp_tools/ytdlp_cache", cfg.CacheDir)
	assert.Equal(t, "audiocache.db", cfg.DBPath)
	assert.Equal(t, 600*time.Second, cfg.ExtractorTimeout)
	assert.Equal(t, 120*time.Second, cfg.TranscodeTimeout)
	assert.Equal(t, 30*time.Second, cfg.MetadataTimeout)
	assert.Equal(t, 10*time.Minute, cfg.ReapInterval)
	assert.Equal(t, 30, cfg.ToolMaxAgeDays)
	assert.Equal(t, "127.0.0.1:25665", cfg.Web.BindAddress)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CACHE_DIR", "/tmp/other_cache")
	t.Setenv("EXTRACTOR_TIMEOUT", "90s")
	t.Setenv("WEB_BIND_ADDRESS", "127.0.0.1:1234")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other_cache", cfg.CacheDir)
	assert.Equal(t, 90*time.Second, cfg.ExtractorTimeout)
	assert.Equal(t, "127.0.0.1:1234", cfg.Web.BindAddress)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		assert.Equal(t, tt.want, cfg.SlogLevel(), tt.level)
	}
}
