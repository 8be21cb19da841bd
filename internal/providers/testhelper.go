package providers

import (
	"os"
)

// TestConfig holds service settings for integration tests, read from the
// same environment variables the CLI honors.
type TestConfig struct {
	BaseURL string
	APIKey  string
}

// LoadTestConfig reads OCRSYNC_SERVICE_BASE_URL and OCRSYNC_SERVICE_API_KEY.
func LoadTestConfig() TestConfig {
	return TestConfig{
		BaseURL: os.Getenv("OCRSYNC_SERVICE_BASE_URL"),
		APIKey:  os.Getenv("OCRSYNC_SERVICE_API_KEY"),
	}
}

// HasService returns true if a live service is configured.
func (c TestConfig) HasService() bool {
	return c.BaseURL != ""
}

// ClientConfig converts the test config into a client Config.
func (c TestConfig) ClientConfig() Config {
	return Config{BaseURL: c.BaseURL, APIKey: c.APIKey}
}

// StaticUpload is an in-memory Upload.
type StaticUpload struct {
	Name string
	Type string
	Data []byte
}

func (u StaticUpload) FileName() string    { return u.Name }
func (u StaticUpload) ContentType() string { return u.Type }
func (u StaticUpload) Bytes() []byte       { return u.Data }
