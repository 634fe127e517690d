package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "nope.toml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != 8766 {
		t.Fatalf("port = %d, want 8766", cfg.Port)
	}
	if cfg.HeartbeatInterval.Duration != 10*time.Second {
		t.Fatalf("heartbeat = %v, want 10s", cfg.HeartbeatInterval.Duration)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := GetDefaultConfig()
	cfg.Port = 9001
	cfg.PongTimeout = Duration{30 * time.Second}

	if err := cfg.SaveConfig(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Port != 9001 {
		t.Fatalf("port = %d, want 9001", loaded.Port)
	}
	if loaded.PongTimeout.Duration != 30*time.Second {
		t.Fatalf("pong timeout = %v, want 30s", loaded.PongTimeout.Duration)
	}
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := GetDefaultConfig().SaveConfig(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	t.Setenv("WS_HOST", "0.0.0.0")
	t.Setenv("WS_PORT", "9999")
	t.Setenv("WS_ENDPOINT_HOSTS", "a.local, b.local")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "0.0.0.0" {
		t.Fatalf("host = %q, want 0.0.0.0", cfg.Host)
	}
	if cfg.Port != 9999 {
		t.Fatalf("port = %d, want 9999", cfg.Port)
	}
	if len(cfg.EndpointAdvertiseSet) != 2 || cfg.EndpointAdvertiseSet[0] != "a.local" {
		t.Fatalf("endpoint hosts = %v", cfg.EndpointAdvertiseSet)
	}
}

func TestInvalidPortEnvIgnored(t *testing.T) {
	t.Setenv("WS_PORT", "not-a-number")
	cfg := GetDefaultConfig()
	applyEnvOverrides(cfg)
	if cfg.Port != 8766 {
		t.Fatalf("port = %d, want default 8766 when env is invalid", cfg.Port)
	}
}

func TestSaveTemplateConfigWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	cfg := GetDefaultConfig()
	if err := cfg.SaveTemplateConfig(path); err != nil {
		t.Fatalf("save template: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}
