package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// memBackend is an in-memory ConfigBackend.
type memBackend struct {
	strings map[string]string
	ints    map[string]int
}

func newMemBackend() *memBackend {
	return &memBackend{strings: map[string]string{}, ints: map[string]int{}}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *memBackend) SetString(key, val string) error { m.strings[key] = val; return nil }
func (m *memBackend) SetInt(key string, val int) error { m.ints[key] = val; return nil }
func (m *memBackend) Delete(key string) error {
	delete(m.strings, key)
	delete(m.ints, key)
	return nil
}

// clearEnv blanks every RAGDESK_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:8000/api/v1" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout() != 30*time.Second {
		t.Errorf("API.Timeout() = %v, want 30s", cfg.API.Timeout())
	}
	if cfg.API.HealthTimeout() != 5*time.Second {
		t.Errorf("API.HealthTimeout() = %v, want 5s", cfg.API.HealthTimeout())
	}
	if cfg.Query.TopK != 5 {
		t.Errorf("Query.TopK = %d, want 5", cfg.Query.TopK)
	}
	if cfg.Query.UseRerank {
		t.Error("Query.UseRerank = true, want false")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if !cfg.History.Enabled {
		t.Error("History.Enabled = false, want true")
	}
	if cfg.DevServer.Port != 8000 {
		t.Errorf("DevServer.Port = %d, want 8000", cfg.DevServer.Port)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.strings["api.base_url"] = "http://rag.internal/api/v1"
	b.ints["api.timeout_ms"] = 1500
	b.ints["query.top_k"] = 8
	b.strings["query.use_rerank"] = "true"
	b.strings["history.enabled"] = "false"
	b.strings["storage.data_dir"] = "/tmp/ragdesk-test"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.API.BaseURL != "http://rag.internal/api/v1" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout() != 1500*time.Millisecond {
		t.Errorf("API.Timeout() = %v", cfg.API.Timeout())
	}
	if cfg.Query.TopK != 8 || !cfg.Query.UseRerank {
		t.Errorf("Query = %+v", cfg.Query)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled = true, want false")
	}
	if got := cfg.Storage.HistoryPath(); got != filepath.Join("/tmp/ragdesk-test", HistoryFile) {
		t.Errorf("HistoryPath() = %q", got)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.strings["api.base_url"] = "http://file/api/v1"
	b.ints["devserver.port"] = 9000

	t.Setenv("RAGDESK_API_BASE_URL", "http://env/api/v1")
	t.Setenv("RAGDESK_DEVSERVER_PORT", "9100")
	t.Setenv("RAGDESK_QUERY_USE_RERANK", "1")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.API.BaseURL != "http://env/api/v1" {
		t.Errorf("API.BaseURL = %q, want env value", cfg.API.BaseURL)
	}
	if cfg.DevServer.Port != 9100 {
		t.Errorf("DevServer.Port = %d, want 9100", cfg.DevServer.Port)
	}
	if !cfg.Query.UseRerank {
		t.Error("Query.UseRerank = false, want true")
	}
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAGDESK_QUERY_TOP_K", "lots")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Query.TopK != 5 {
		t.Errorf("Query.TopK = %d, want default 5", cfg.Query.TopK)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		set  func(b *memBackend)
		want string
	}{
		{"empty base url", func(b *memBackend) { b.strings["api.base_url"] = "" }, "api.base_url"},
		{"zero timeout", func(b *memBackend) { b.ints["api.timeout_ms"] = 0 }, "timeouts"},
		{"top_k too large", func(b *memBackend) { b.ints["query.top_k"] = 21 }, "query.top_k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			b := newMemBackend()
			tt.set(b)
			_, err := loadWith(b)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "ragdesk", "config.json")

	b := newFileBackend(path)
	if err := setKey(b, "query.top_k", "7"); err != nil {
		t.Fatal(err)
	}
	if err := setKey(b, "history.enabled", "no"); err == nil {
		t.Error("expected error for invalid boolean")
	}
	if err := setKey(b, "history.enabled", "false"); err != nil {
		t.Fatal(err)
	}
	if err := setKey(b, "api.base_url", "http://saved/api/v1"); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Query.TopK != 7 {
		t.Errorf("Query.TopK = %d, want 7", cfg.Query.TopK)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled = true, want false")
	}
	if cfg.API.BaseURL != "http://saved/api/v1" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
}

func TestFileBackendRejectsFractionalInt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"query.top_k": 2.5}`), 0o600); err != nil {
		t.Fatal(err)
	}
	clearEnv(t)
	if _, err := loadWith(newFileBackend(path)); err == nil {
		t.Fatal("expected error for fractional integer")
	}
}

func TestSetKeyUnknown(t *testing.T) {
	err := setKey(newMemBackend(), "nope", "1")
	if err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("err = %v, want unknown config key", err)
	}
}

func TestShowAllCoversValidKeys(t *testing.T) {
	keys := ShowAll(defaults())
	valid := ValidKeys()
	if len(keys) != len(valid) {
		t.Fatalf("ShowAll returned %d keys, ValidKeys %d", len(keys), len(valid))
	}
	for i, k := range keys {
		if k.Key != valid[i] {
			t.Errorf("key %d = %q, want %q", i, k.Key, valid[i])
		}
		if !strings.HasPrefix(k.EnvVar, "RAGDESK_") {
			t.Errorf("EnvVar for %s = %q", k.Key, k.EnvVar)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("RAGDESK_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables already present, even empty ones.
	os.Unsetenv("RAGDESK_LOG_LEVEL")

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if got := os.Getenv("RAGDESK_LOG_LEVEL"); got != "debug" {
		t.Errorf("RAGDESK_LOG_LEVEL = %q, want debug", got)
	}

	if err := loadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}
