package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	ToolsDir         string `envconfig:"TOOLS_DIR" default:"tools"`
	CacheDir         string `envconfig:"CACHE_DIR" default:"ytdlp_tools/ytdlp_cache"`
	ExtractorVersion string `envconfig:"EXTRACTOR_VERSION" default:"2025.10.22"`
	DBPath           string `envconfig:"DB_PATH" default:"audiocache.db"`
	LogLevel         string `envconfig:"LOG_LEVEL" default:"INFO"`

	ExtractorTimeout time.Duration `envconfig:"EXTRACTOR_TIMEOUT" default:"600s"`
	TranscodeTimeout time.Duration `envconfig:"TRANSCODE_TIMEOUT" default:"120s"`
	MetadataTimeout  time.Duration `envconfig:"METADATA_TIMEOUT" default:"30s"`
	ThumbnailTimeout time.Duration `envconfig:"THUMBNAIL_TIMEOUT" default:"30s"`

	ReapInterval     time.Duration `envconfig:"REAP_INTERVAL" default:"10m"`
	ToolMaxAgeDays   int           `envconfig:"TOOL_MAX_AGE_DAYS" default:"30"`
	CacheClearOldAge time.Duration `envconfig:"CACHE_CLEAR_OLD_AGE" default:"720h"`

	Telemetry struct {
		Enabled        bool   `split_words:"true" default:"true"`
		ServiceName    string `split_words:"true" default:"audiocache"`
		ServiceVersion string `split_words:"true" default:"dev"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"127.0.0.1:25665"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"5m"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
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
