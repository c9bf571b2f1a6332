package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the orchestration server.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// DatabaseURL selects the Postgres task store when set; SQLitePath
	// selects the embedded store otherwise. With neither, the server runs
	// on the in-memory store.
	DatabaseURL string
	SQLitePath  string

	// StoreTimeout bounds every individual task-store call.
	StoreTimeout time.Duration

	// EventBuffer is the per-observer broadcast channel capacity.
	EventBuffer int

	// SessionIdleTimeout > 0 enables the janitor, which stops sessions with
	// no activity for that long. Zero disables it.
	SessionIdleTimeout time.Duration
	JanitorInterval    time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "maestro"),
		AllowAnyOrigin:     false,
		DatabaseURL:        envTrimmed("DATABASE_URL"),
		SQLitePath:         envTrimmed("SQLITE_PATH"),
		ShutdownTimeout:    15 * time.Second,
		StoreTimeout:       2 * time.Second,
		EventBuffer:        256,
		SessionIdleTimeout: 0,
		JanitorInterval:    15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.StoreTimeout, err = durationFromEnv("APP_STORE_TIMEOUT", cfg.StoreTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleTimeout, err = durationFromEnv("APP_SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.JanitorInterval, err = durationFromEnv("APP_JANITOR_INTERVAL", cfg.JanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.EventBuffer, err = intFromEnv("APP_EVENT_BUFFER", cfg.EventBuffer)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.StoreTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_STORE_TIMEOUT must be positive")
	}
	if cfg.EventBuffer <= 0 {
		return Config{}, fmt.Errorf("APP_EVENT_BUFFER must be positive")
	}
	if cfg.SessionIdleTimeout < 0 {
		return Config{}, fmt.Errorf("APP_SESSION_IDLE_TIMEOUT must be >= 0")
	}
	if cfg.SessionIdleTimeout > 0 && cfg.SessionIdleTimeout < 30*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_IDLE_TIMEOUT must be at least 30s when enabled")
	}
	if cfg.JanitorInterval <= 0 {
		return Config{}, fmt.Errorf("APP_JANITOR_INTERVAL must be positive")
	}
	if cfg.DatabaseURL != "" && cfg.SQLitePath != "" {
		return Config{}, fmt.Errorf("DATABASE_URL and SQLITE_PATH are mutually exclusive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
