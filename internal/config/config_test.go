package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var secretEnvVars = []string{
	"FINMARKET_REMOTE_API_TOKEN",
	"FINMARKET_STORAGE_REDIS_PASSWORD",
}

func clearSecretEnv() {
	for _, e := range secretEnvVars {
		os.Unsetenv(e)
	}
}

// ── Load / Defaults ──

func TestLoadReturnsDefaults(t *testing.T) {
	clearSecretEnv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Remote defaults
	if cfg.Remote.BaseURL != "http://localhost:8000" {
		t.Errorf("Remote.BaseURL: got %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.Timeout != 10*time.Second {
		t.Errorf("Remote.Timeout: got %s, want 10s", cfg.Remote.Timeout)
	}
	if cfg.Remote.APIToken != "" {
		t.Errorf("Remote.APIToken should be empty, got %q", cfg.Remote.APIToken)
	}

	// Feed defaults
	if cfg.Feed.DefaultCategory != "all" {
		t.Errorf("Feed.DefaultCategory: got %q, want %q", cfg.Feed.DefaultCategory, "all")
	}
	if len(cfg.Feed.Basket) != 2 || cfg.Feed.Basket[0] != "AAPL" || cfg.Feed.Basket[1] != "TSLA" {
		t.Errorf("Feed.Basket: got %v", cfg.Feed.Basket)
	}

	// Storage defaults
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver: got %q, want %q", cfg.Storage.Driver, "sqlite")
	}
	if cfg.Storage.KeyPrefix != "finmarket:" {
		t.Errorf("Storage.KeyPrefix: got %q", cfg.Storage.KeyPrefix)
	}

	// Chart defaults
	if cfg.Chart.Exchange != "NASDAQ" {
		t.Errorf("Chart.Exchange: got %q, want %q", cfg.Chart.Exchange, "NASDAQ")
	}
	if cfg.Chart.DateRange != "12M" {
		t.Errorf("Chart.DateRange: got %q, want %q", cfg.Chart.DateRange, "12M")
	}

	// API defaults
	if cfg.API.Port != 8090 {
		t.Errorf("API.Port: got %d, want 8090", cfg.API.Port)
	}
	if cfg.Addr() != "127.0.0.1:8090" {
		t.Errorf("Addr(): got %q", cfg.Addr())
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format: got %q, want %q", cfg.Logging.Format, "text")
	}
}

// ── LoadFromFile ──

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test_config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	clearSecretEnv()
	path := writeConfig(t, `
remote:
  base_url: "http://10.0.2.2:8000"
  timeout: 3s
feed:
  default_category: "crypto"
  basket: ["BTC", "ETH"]
storage:
  driver: "redis"
  redis_addr: "cache:6379"
  redis_password: "config-password-1234"
api:
  port: 9090
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if cfg.Remote.BaseURL != "http://10.0.2.2:8000" {
		t.Errorf("Remote.BaseURL: got %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.Timeout != 3*time.Second {
		t.Errorf("Remote.Timeout: got %s, want 3s", cfg.Remote.Timeout)
	}
	if cfg.Feed.DefaultCategory != "crypto" {
		t.Errorf("Feed.DefaultCategory: got %q", cfg.Feed.DefaultCategory)
	}
	if strings.Join(cfg.Feed.Basket, ",") != "BTC,ETH" {
		t.Errorf("Feed.Basket: got %v", cfg.Feed.Basket)
	}
	if cfg.Storage.Driver != "redis" || cfg.Storage.RedisAddr != "cache:6379" {
		t.Errorf("Storage: got %+v", cfg.Storage)
	}
	if cfg.Storage.RedisPassword != "config-password-1234" {
		t.Errorf("Storage.RedisPassword: got %q", cfg.Storage.RedisPassword)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port: got %d, want 9090", cfg.API.Port)
	}
	// Unset sections keep their defaults.
	if cfg.Chart.Exchange != "NASDAQ" {
		t.Errorf("Chart.Exchange: got %q, want default", cfg.Chart.Exchange)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format: got %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoadFromFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("LoadFromFile() with nonexistent path should return error")
	}
}

func TestLoadFromFileEnvOverride(t *testing.T) {
	clearSecretEnv()
	t.Setenv("FINMARKET_REMOTE_BASE_URL", "http://env-host:8000")
	t.Setenv("FINMARKET_REMOTE_TIMEOUT", "750ms")

	cfg, err := LoadFromFile(writeConfig(t, "remote:\n  base_url: \"http://file-host:8000\"\n"))
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if cfg.Remote.BaseURL != "http://env-host:8000" {
		t.Errorf("env should override file, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.Timeout != 750*time.Millisecond {
		t.Errorf("Remote.Timeout: got %s, want 750ms", cfg.Remote.Timeout)
	}
}

// ── Validate ──

func TestLoadFromFileRejectsInvalid(t *testing.T) {
	clearSecretEnv()
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown driver", "storage:\n  driver: \"mongo\"\n", "storage.driver"},
		{"unknown category", "feed:\n  default_category: \"commodities\"\n", "feed.default_category"},
		{"zero timeout", "remote:\n  timeout: 0s\n", "remote.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

// ── overrideFromEnv ──

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("FINMARKET_REMOTE_API_TOKEN", "token-from-env-123456")
	t.Setenv("FINMARKET_STORAGE_REDIS_PASSWORD", "redis-secret")

	cfg := &Config{}
	overrideFromEnv(cfg)

	if cfg.Remote.APIToken != "token-from-env-123456" {
		t.Errorf("APIToken: got %q", cfg.Remote.APIToken)
	}
	if cfg.Storage.RedisPassword != "redis-secret" {
		t.Errorf("RedisPassword: got %q", cfg.Storage.RedisPassword)
	}
}

func TestOverrideFromEnvNoEnvSet(t *testing.T) {
	clearSecretEnv()

	cfg := &Config{Remote: RemoteConfig{APIToken: "from-config"}}
	overrideFromEnv(cfg)

	if cfg.Remote.APIToken != "from-config" {
		t.Errorf("APIToken should stay as 'from-config' when env is unset, got %q", cfg.Remote.APIToken)
	}
}

// ── maskSecret ──

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "***"},
		{"abcd", "***"},
		{"12345678", "***"},
		{"123456789", "123...789"},
		{"tok-abcdef1234567890xyz", "tok...xyz"},
	}
	for _, tc := range tests {
		if got := maskSecret(tc.input); got != tc.want {
			t.Errorf("maskSecret(%q): got %q, want %q", tc.input, got, tc.want)
		}
	}
}

// ── CheckSecrets ──

func TestCheckSecretsAllEmpty(t *testing.T) {
	clearSecretEnv()

	statuses := CheckSecrets(&Config{})
	if len(statuses) != 2 {
		t.Fatalf("CheckSecrets: got %d statuses, want 2", len(statuses))
	}
	for _, s := range statuses {
		if s.IsSet {
			t.Errorf("secret %q should not be set", s.Name)
		}
		if s.Source != SecretSourceNone {
			t.Errorf("secret %q source: got %q, want %q", s.Name, s.Source, SecretSourceNone)
		}
	}
}

func TestCheckSecretSourceDetection(t *testing.T) {
	os.Unsetenv("TEST_VAR")
	s := checkSecret("Test", "config-value-long-enough", "TEST_VAR")
	if s.Source != SecretSourceConfig || !s.IsSet {
		t.Errorf("config value: got %+v", s)
	}

	t.Setenv("TEST_VAR", "env-value-long-enough")
	s = checkSecret("Test", "env-value-long-enough", "TEST_VAR")
	if s.Source != SecretSourceEnv {
		t.Errorf("env value: got source %q, want %q", s.Source, SecretSourceEnv)
	}
	if s.Masked != "env...ugh" {
		t.Errorf("Masked: got %q", s.Masked)
	}
}
