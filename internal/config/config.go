// Package config loads application configuration from environment variables
// and the optional YAML seed file.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string

	// SecretKey is the 32-byte AES-256 key for provider tokens; nil disables
	// token storage.
	SecretKey []byte

	LambdaGitHubURL    string
	LambdaBitbucketURL string

	RedisURL string
	CacheTTL time.Duration

	Workers         int
	QueueSize       int
	UpstreamRate    float64
	UpstreamBurst   int
	RefreshInterval time.Duration
	DaysPrior       int

	LogLevel  slog.Level
	LogFormat string

	SeedFile string
}

// UsesLambda reports whether upstream fetches go through the Lambda endpoints
// rather than the GitHub REST API directly.
func (c *Config) UsesLambda() bool {
	return c.LambdaGitHubURL != "" || c.LambdaBitbucketURL != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// Every variable is optional. Defaults: DORAMETRICS_LISTEN_ADDR (127.0.0.1:8080),
// DORAMETRICS_DB_PATH (dorametrics.db), DORAMETRICS_CACHE_TTL (15m),
// DORAMETRICS_WORKERS (4), DORAMETRICS_QUEUE_SIZE (64), DORAMETRICS_UPSTREAM_BURST (1),
// DORAMETRICS_DAYS_PRIOR (90), DORAMETRICS_LOG_LEVEL (info), DORAMETRICS_LOG_FORMAT (text).
// An unset DORAMETRICS_REFRESH_INTERVAL or DORAMETRICS_UPSTREAM_RATE disables
// periodic refresh or upstream throttling.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:         envString("DORAMETRICS_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:             envString("DORAMETRICS_DB_PATH", "dorametrics.db"),
		LambdaGitHubURL:    os.Getenv("DORAMETRICS_LAMBDA_GITHUB_URL"),
		LambdaBitbucketURL: os.Getenv("DORAMETRICS_LAMBDA_BITBUCKET_URL"),
		RedisURL:           os.Getenv("DORAMETRICS_REDIS_URL"),
		SeedFile:           os.Getenv("DORAMETRICS_SEED_FILE"),
	}

	var err error

	if cfg.SecretKey, err = parseSecretKey(os.Getenv("DORAMETRICS_SECRET_KEY")); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = envDuration("DORAMETRICS_CACHE_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = envDuration("DORAMETRICS_REFRESH_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.Workers, err = envPositiveInt("DORAMETRICS_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = envPositiveInt("DORAMETRICS_QUEUE_SIZE", 64); err != nil {
		return nil, err
	}
	if cfg.UpstreamBurst, err = envPositiveInt("DORAMETRICS_UPSTREAM_BURST", 1); err != nil {
		return nil, err
	}
	if cfg.DaysPrior, err = envPositiveInt("DORAMETRICS_DAYS_PRIOR", 90); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("DORAMETRICS_UPSTREAM_RATE"); ok && v != "" {
		cfg.UpstreamRate, err = strconv.ParseFloat(v, 64)
		if err != nil || cfg.UpstreamRate < 0 {
			return nil, fmt.Errorf("DORAMETRICS_UPSTREAM_RATE has invalid value %q", v)
		}
	}

	if v, ok := os.LookupEnv("DORAMETRICS_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("DORAMETRICS_LOG_LEVEL has invalid value %q: %w", v, err)
		}
	}

	cfg.LogFormat = strings.ToLower(envString("DORAMETRICS_LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("DORAMETRICS_LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

// NewLogger builds the process logger from the configured level and format.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// parseSecretKey decodes a hex-encoded 32-byte key. An empty value is allowed.
func parseSecretKey(v string) ([]byte, error) {
	if v == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("DORAMETRICS_SECRET_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("DORAMETRICS_SECRET_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, v)
	}
	return d, nil
}

func envPositiveInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
