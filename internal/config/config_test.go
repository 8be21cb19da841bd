package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/yaml.v2"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Service.BaseURL == "" {
		t.Error("expected default service URL")
	}
	if cfg.Service.APIKey != "${OCRSYNC_API_KEY}" {
		t.Error("expected API key placeholder")
	}
	if cfg.Session.Template != "en" || cfg.Session.BatchFanout < 1 {
		t.Errorf("unexpected session defaults: %+v", cfg.Session)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})

	t.Run("expands embedded references", func(t *testing.T) {
		t.Setenv("TEST_HOST", "ocr.internal")
		result := ResolveEnvVars("https://${TEST_HOST}:8000")
		if result != "https://ocr.internal:8000" {
			t.Errorf("got %s", result)
		}
	})
}

func TestServiceCfg_ClientConfig(t *testing.T) {
	t.Setenv("TEST_OCR_KEY", "k-123")
	cfg := ServiceCfg{
		BaseURL:           "http://ocr:8000",
		APIKey:            "${TEST_OCR_KEY}",
		TimeoutSeconds:    30,
		RequestsPerMinute: 60,
	}

	cc := cfg.ClientConfig(slog.Default())
	if cc.APIKey != "k-123" {
		t.Errorf("APIKey = %q, want resolved value", cc.APIKey)
	}
	if cc.Timeout != 30*time.Second || cc.RequestsPerMinute != 60 || cc.BaseURL != "http://ocr:8000" {
		t.Errorf("ClientConfig() = %+v", cc)
	}
}

func TestLogCfg_SlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (LogCfg{Level: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
service:
  base_url: "http://ocr.example:9000"
session:
  template: ch
`)
		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Service.BaseURL != "http://ocr.example:9000" {
			t.Errorf("expected file base_url, got %s", cfg.Service.BaseURL)
		}
		if cfg.Session.Template != "ch" {
			t.Errorf("expected template ch, got %s", cfg.Session.Template)
		}
		if cfg.Session.BatchFanout != DefaultConfig().Session.BatchFanout {
			t.Errorf("unset key should keep its default, got %d", cfg.Session.BatchFanout)
		}
		if mgr.ConfigFileUsed() != configFile {
			t.Errorf("ConfigFileUsed() = %q", mgr.ConfigFileUsed())
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		configFile := writeConfig(t, "session:\n  batch_fanout: 4\n")
		t.Setenv("OCRSYNC_SESSION_BATCH_FANOUT", "9")

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Session.BatchFanout; got != 9 {
			t.Errorf("BatchFanout = %d, want 9", got)
		}
	})

	t.Run("missing config file in search path is fine", func(t *testing.T) {
		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if mgr.Get().Log.Level != "info" {
			t.Errorf("expected defaults, got %+v", mgr.Get().Log)
		}
	})

	t.Run("finds config in search dir", func(t *testing.T) {
		dir := filepath.Dir(writeConfig(t, "log:\n  level: debug\n"))
		mgr, err := NewManager("", dir)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if mgr.Get().Log.Level != "debug" {
			t.Errorf("Log.Level = %q, want debug", mgr.Get().Log.Level)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		configFile := writeConfig(t, "service: [unclosed\n")
		if _, err := NewManager(configFile); err == nil {
			t.Error("expected error for invalid config file")
		}
	})
}

func TestManager_Value(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "session:\n  template: ch\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	v, err := mgr.Value("session.template")
	if err != nil || v != "ch" {
		t.Errorf("Value(session.template) = %v, %v", v, err)
	}
	if _, err := mgr.Value("foo bar"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := mgr.Value("does.not.exist"); !errors.Is(err, ErrNoDefault) {
		t.Errorf("expected ErrNoDefault, got %v", err)
	}

	entries := mgr.Entries()
	if len(entries) != len(DefaultEntries()) {
		t.Fatalf("Entries() returned %d entries", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Key > entries[i].Key {
			t.Errorf("entries not sorted at %d", i)
		}
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "log:\n  level: info\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "log:\n  level: info\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Log.Level
			}
			done <- struct{}{}
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "session:\n  batch_fanout: 2\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	if got := mgr.Get().Session.BatchFanout; got != 2 {
		t.Errorf("initial value mismatch: expected 2, got %d", got)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Int32

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(int32(cfg.Session.BatchFanout))
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("session:\n  batch_fanout: 8\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if lastValue.Load() == 8 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Session.BatchFanout; got != 8 {
		t.Errorf("config not updated: expected 8, got %d", got)
	}
	if v := lastValue.Load(); v != 8 {
		t.Errorf("callback received wrong value: expected 8, got %d", v)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid yaml: %v", err)
	}
	if cfg.Service.BaseURL != DefaultConfig().Service.BaseURL {
		t.Errorf("round trip base_url = %q", cfg.Service.BaseURL)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager(written default) error = %v", err)
	}
	if mgr.Get().Session.Template != "en" {
		t.Errorf("template = %q", mgr.Get().Session.Template)
	}
}
