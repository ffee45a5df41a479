package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every externally supplied setting. Values are read once at
// process start and never change afterwards.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// CORSOrigin is the single allowed cross-origin address for browser
	// clients.
	CORSOrigin string

	// MaxMessages caps the retained message history per room.
	MaxMessages int

	// RateLimitMax is the number of upgrade requests allowed per IP within
	// RateLimitWindow. Zero disables rate limiting.
	RateLimitMax    int
	RateLimitWindow time.Duration

	// RedisAddr, when set, backs message history with Redis instead of
	// process memory.
	RedisAddr string
}

// fileConfig mirrors Config for the optional YAML config file. The window
// is a duration string such as "15m".
type fileConfig struct {
	Addr            string `yaml:"addr"`
	CORSOrigin      string `yaml:"cors_origin"`
	MaxMessages     int    `yaml:"max_messages"`
	RateLimitMax    int    `yaml:"rate_limit_max"`
	RateLimitWindow string `yaml:"rate_limit_window"`
	RedisAddr       string `yaml:"redis_addr"`
}

// Load builds the configuration from defaults, an optional YAML file named
// by CONFIG_FILE, and environment variables, in increasing precedence.
// A .env file in the working directory is honored if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:            ":3001",
		CORSOrigin:      "http://localhost:5173",
		MaxMessages:     50,
		RateLimitMax:    100,
		RateLimitWindow: 15 * time.Minute,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fc.Addr != "" {
		c.Addr = fc.Addr
	}
	if fc.CORSOrigin != "" {
		c.CORSOrigin = fc.CORSOrigin
	}
	if fc.MaxMessages > 0 {
		c.MaxMessages = fc.MaxMessages
	}
	if fc.RateLimitMax != 0 {
		c.RateLimitMax = fc.RateLimitMax
	}
	if fc.RateLimitWindow != "" {
		d, err := time.ParseDuration(fc.RateLimitWindow)
		if err != nil {
			return fmt.Errorf("config: rate_limit_window: %w", err)
		}
		c.RateLimitWindow = d
	}
	if fc.RedisAddr != "" {
		c.RedisAddr = fc.RedisAddr
	}
	return nil
}

func (c *Config) applyEnv() error {
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		c.Addr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	if origin := os.Getenv("CORS_ORIGIN"); origin != "" {
		c.CORSOrigin = origin
	}
	if v := os.Getenv("MAX_MESSAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: MAX_MESSAGES must be a positive integer, got %q", v)
		}
		c.MaxMessages = n
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: RATE_LIMIT_MAX must be an integer, got %q", v)
		}
		c.RateLimitMax = n
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: RATE_LIMIT_WINDOW: %w", err)
		}
		c.RateLimitWindow = d
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.RedisAddr = addr
	}
	return nil
}
