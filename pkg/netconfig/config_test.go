package netconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_Validates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadOrCreateConfig_CreatesOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg, err := LoadOrCreateConfig(path)
	if err != nil {
		t.Fatalf("LoadOrCreateConfig: %v", err)
	}
	if cfg.Server.ListenAddr != DefaultConfig().Server.ListenAddr {
		t.Fatalf("expected default listen addr, got %q", cfg.Server.ListenAddr)
	}

	loaded, err := LoadOrCreateConfig(path)
	if err != nil {
		t.Fatalf("LoadOrCreateConfig on existing file: %v", err)
	}
	if loaded.Server.ListenAddr != cfg.Server.ListenAddr {
		t.Fatalf("expected idempotent reload, got %q vs %q", loaded.Server.ListenAddr, cfg.Server.ListenAddr)
	}
}

func TestLoadConfig_OverridesLayerOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	partial := []byte("server:\n  listen_addr: \"127.0.0.1:1234\"\n")
	if err := os.WriteFile(path, partial, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:1234" {
		t.Fatalf("expected override to apply, got %q", cfg.Server.ListenAddr)
	}
	if cfg.Limits.MaxClients != DefaultConfig().Limits.MaxClients {
		t.Fatalf("expected unset fields to retain defaults, got %d", cfg.Limits.MaxClients)
	}
}

func TestValidate_RejectsBadHeartbeatOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.HeartbeatTimeoutS = cfg.Limits.HeartbeatIntervalS
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for heartbeat_timeout_s <= heartbeat_interval_s")
	}
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown log level")
	}
}
