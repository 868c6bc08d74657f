package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Storage.Type != "sqlite" {
		t.Fatalf("expected sqlite default, got %q", cfg.Storage.Type)
	}
	if cfg.Sync.MaxRetries != 3 {
		t.Fatalf("expected 3 retries default, got %d", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.GetBaseDelay() != time.Second || cfg.Sync.GetMaxDelay() != 30*time.Second {
		t.Fatalf("unexpected backoff defaults: %v / %v", cfg.Sync.GetBaseDelay(), cfg.Sync.GetMaxDelay())
	}
	if cfg.Sync.ConflictPageSize != 10 {
		t.Fatalf("expected page size 10, got %d", cfg.Sync.ConflictPageSize)
	}
	if cfg.Server.Port != 8090 {
		t.Fatalf("expected port 8090, got %d", cfg.Server.Port)
	}
	if !cfg.Scheduler.Enabled {
		t.Fatalf("expected scheduler enabled by default")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
storage:
  type: memory

remote:
  base_url: https://fuel.example.com
  timeout: 5s

sync:
  max_retries: 5
  base_delay: 2s
  max_delay: 60s

server:
  port: 9000
  auth_token: hunter2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Storage.Type != "memory" {
		t.Fatalf("expected memory storage, got %q", cfg.Storage.Type)
	}
	if cfg.Remote.BaseURL != "https://fuel.example.com" {
		t.Fatalf("unexpected base url %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.GetTimeout() != 5*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Remote.GetTimeout())
	}
	if cfg.Sync.MaxRetries != 5 || cfg.Sync.GetBaseDelay() != 2*time.Second || cfg.Sync.GetMaxDelay() != time.Minute {
		t.Fatalf("unexpected sync config: %+v", cfg.Sync)
	}
	if cfg.Server.Port != 9000 || cfg.Server.AuthToken != "hunter2" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}

	// Unset sections keep defaults.
	if cfg.Sync.ConflictPageSize != 10 {
		t.Fatalf("expected default page size, got %d", cfg.Sync.ConflictPageSize)
	}
}

func TestDurationGettersFallBackOnGarbage(t *testing.T) {
	sync := SyncConfig{BaseDelay: "soon", MaxDelay: "-5s"}
	if sync.GetBaseDelay() != time.Second {
		t.Fatalf("expected fallback base delay, got %v", sync.GetBaseDelay())
	}
	if sync.GetMaxDelay() != 30*time.Second {
		t.Fatalf("expected fallback max delay, got %v", sync.GetMaxDelay())
	}

	remote := RemoteConfig{Timeout: ""}
	if remote.GetTimeout() != 15*time.Second {
		t.Fatalf("expected fallback timeout, got %v", remote.GetTimeout())
	}
}
