package config

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// Entry is one documented configuration key.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// DefaultEntries returns every configuration key with its default value.
// They are registered as viper defaults so each key can be overridden from
// the config file or an OCRSYNC_ environment variable.
func DefaultEntries() []Entry {
	d := DefaultConfig()
	return []Entry{
		// ===================
		// OCR service
		// ===================
		{
			Key:         "service.base_url",
			Value:       d.Service.BaseURL,
			Description: "Base URL of the OCR extraction and verification service",
		},
		{
			Key:         "service.api_key",
			Value:       d.Service.APIKey,
			Description: "Bearer token sent to the service (uses environment variable)",
		},
		{
			Key:         "service.timeout_seconds",
			Value:       d.Service.TimeoutSeconds,
			Description: "Per-request timeout in seconds",
		},
		{
			Key:         "service.requests_per_minute",
			Value:       d.Service.RequestsPerMinute,
			Description: "Client-side rate limit; 0 disables limiting",
		},
		{
			Key:         "service.health_attempts",
			Value:       d.Service.HealthAttempts,
			Description: "Health check attempts before giving up",
		},

		// ===================
		// Sessions
		// ===================
		{
			Key:         "session.template",
			Value:       d.Session.Template,
			Description: "Template id active when a session starts",
		},
		{
			Key:         "session.batch_fanout",
			Value:       d.Session.BatchFanout,
			Description: "Maximum concurrent extractions during batch processing (hot reloadable)",
		},
		{
			Key:         "session.raw_text_hints",
			Value:       d.Session.RawTextHints,
			Description: "Fill empty email and phone fields from raw OCR text",
		},

		// ===================
		// Templates and logging
		// ===================
		{
			Key:         "templates.dir",
			Value:       d.Templates.Dir,
			Description: "Directory of custom template files (default: {home}/templates)",
		},
		{
			Key:         "log.level",
			Value:       d.Log.Level,
			Description: "Log level: debug, info, warn, error (hot reloadable)",
		},
	}
}

// GetDefault returns the default entry for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}
