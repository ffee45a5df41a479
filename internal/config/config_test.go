package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so tests see only what they set.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "LISTEN_ADDR", "PORT", "CORS_ORIGIN",
		"MAX_MESSAGES", "RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW", "REDIS_ADDR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":3001" {
		t.Errorf("expected default addr ':3001', got %q", cfg.Addr)
	}
	if cfg.CORSOrigin != "http://localhost:5173" {
		t.Errorf("unexpected default origin %q", cfg.CORSOrigin)
	}
	if cfg.MaxMessages != 50 {
		t.Errorf("expected default cap 50, got %d", cfg.MaxMessages)
	}
	if cfg.RateLimitMax != 100 || cfg.RateLimitWindow != 15*time.Minute {
		t.Errorf("unexpected default rate limit %d/%v", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("expected no redis by default, got %q", cfg.RedisAddr)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ORIGIN", "https://chat.example.com")
	t.Setenv("MAX_MESSAGES", "10")
	t.Setenv("RATE_LIMIT_WINDOW", "1m")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("expected ':9000', got %q", cfg.Addr)
	}
	if cfg.CORSOrigin != "https://chat.example.com" {
		t.Errorf("unexpected origin %q", cfg.CORSOrigin)
	}
	if cfg.MaxMessages != 10 {
		t.Errorf("expected cap 10, got %d", cfg.MaxMessages)
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Errorf("expected 1m window, got %v", cfg.RateLimitWindow)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("unexpected redis addr %q", cfg.RedisAddr)
	}
}

func TestLoadListenAddrBeatsPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", "127.0.0.1:8080")
	t.Setenv("PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8080" {
		t.Errorf("expected LISTEN_ADDR to win, got %q", cfg.Addr)
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("addr: \":4000\"\nmax_messages: 25\nrate_limit_window: 5m\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":4000" {
		t.Errorf("expected ':4000', got %q", cfg.Addr)
	}
	if cfg.MaxMessages != 25 {
		t.Errorf("expected cap 25, got %d", cfg.MaxMessages)
	}
	if cfg.RateLimitWindow != 5*time.Minute {
		t.Errorf("expected 5m window, got %v", cfg.RateLimitWindow)
	}
}

func TestLoadEnvBeatsConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_messages: 25\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_MESSAGES", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxMessages != 5 {
		t.Errorf("expected env to win with 5, got %d", cfg.MaxMessages)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_MESSAGES", "zero")
	if _, err := Load(); err == nil {
		t.Error("expected error for non-numeric MAX_MESSAGES")
	}

	clearEnv(t)
	t.Setenv("RATE_LIMIT_WINDOW", "soon")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid RATE_LIMIT_WINDOW")
	}

	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}
