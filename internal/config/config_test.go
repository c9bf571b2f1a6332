package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.MetricsNamespace != "maestro" {
		t.Fatalf("MetricsNamespace = %q, want %q", cfg.MetricsNamespace, "maestro")
	}
	if cfg.EventBuffer != 256 {
		t.Fatalf("EventBuffer = %d, want 256", cfg.EventBuffer)
	}
	if cfg.SessionIdleTimeout != 0 {
		t.Fatalf("SessionIdleTimeout = %v, want 0 (janitor disabled)", cfg.SessionIdleTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("APP_SESSION_IDLE_TIMEOUT", "5m")
	t.Setenv("APP_EVENT_BUFFER", "32")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.SessionIdleTimeout != 5*time.Minute {
		t.Fatalf("SessionIdleTimeout = %v, want 5m", cfg.SessionIdleTimeout)
	}
	if cfg.EventBuffer != 32 {
		t.Fatalf("EventBuffer = %d, want 32", cfg.EventBuffer)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("APP_SESSION_IDLE_TIMEOUT", "5s")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() with 5s idle timeout succeeded, want error")
	}
}

func TestLoadRejectsConflictingStores(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/maestro")
	t.Setenv("SQLITE_PATH", "/tmp/maestro.db")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() with both store backends succeeded, want error")
	}
}
