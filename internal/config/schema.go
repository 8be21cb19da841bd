package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/providers"
)

// Config holds ocrsync configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Service   ServiceCfg   `mapstructure:"service" yaml:"service"`
	Session   SessionCfg   `mapstructure:"session" yaml:"session"`
	Templates TemplatesCfg `mapstructure:"templates" yaml:"templates"`
	Log       LogCfg       `mapstructure:"log" yaml:"log"`
}

// ServiceCfg configures the OCR service client.
type ServiceCfg struct {
	BaseURL           string `mapstructure:"base_url" yaml:"base_url"`
	APIKey            string `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"` // 0 disables limiting
	HealthAttempts    uint   `mapstructure:"health_attempts" yaml:"health_attempts"`
}

// SessionCfg configures extraction sessions.
type SessionCfg struct {
	Template     string `mapstructure:"template" yaml:"template"`
	BatchFanout  int    `mapstructure:"batch_fanout" yaml:"batch_fanout"`
	RawTextHints bool   `mapstructure:"raw_text_hints" yaml:"raw_text_hints"`
}

// TemplatesCfg locates custom template files.
type TemplatesCfg struct {
	// Dir holds extra *.yaml templates; empty means {home}/templates.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LogCfg configures logging.
type LogCfg struct {
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceCfg{
			BaseURL:           providers.DefaultBaseURL,
			APIKey:            "${OCRSYNC_API_KEY}",
			TimeoutSeconds:    int(providers.DefaultTimeout / time.Second),
			RequestsPerMinute: 0,
			HealthAttempts:    5,
		},
		Session: SessionCfg{
			Template:     "en",
			BatchFanout:  3,
			RawTextHints: true,
		},
		Log: LogCfg{
			Level: "info",
		},
	}
}

// ClientConfig converts the service section into a providers.Config,
// resolving ${ENV_VAR} references in the API key.
func (c ServiceCfg) ClientConfig(logger *slog.Logger) providers.Config {
	return providers.Config{
		BaseURL:           c.BaseURL,
		APIKey:            ResolveEnvVars(c.APIKey),
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
		RequestsPerMinute: c.RequestsPerMinute,
		Logger:            logger,
	}
}

// SlogLevel parses the configured level, defaulting to info.
func (c LogCfg) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
