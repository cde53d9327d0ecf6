package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPAddr() != "0.0.0.0:8080" {
		t.Errorf("expected default addr 0.0.0.0:8080, got %s", cfg.HTTPAddr())
	}
	if cfg.Realtime.Path != "/ws" {
		t.Errorf("expected realtime path /ws, got %s", cfg.Realtime.Path)
	}
	if cfg.Auth.AdminRole != "admin" {
		t.Errorf("expected admin role admin, got %s", cfg.Auth.AdminRole)
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[app]
port = 9090

[database]
driver = "sqlite"
dsn = "file:chat.db?_foreign_keys=on"

[redis]
enabled = true
addr = "redis:6379"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://portal.example,https://admin.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.App.Port != 9090 {
		t.Errorf("expected port from file 9090, got %d", cfg.App.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.Database.Driver)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "cache:6380" {
		t.Errorf("expected env to override redis addr, got enabled=%v addr=%s", cfg.Redis.Enabled, cfg.Redis.Addr)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://admin.example" {
		t.Errorf("unexpected origins: %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cases := map[string]map[string]string{
		"unknown driver":          {"DB_DRIVER": "oracle"},
		"versioned without pg":    {"DB_DRIVER": "sqlite", "DB_MIGRATION_MODE": "versioned"},
		"realtime path under api": {"REALTIME_PATH": "/api/chat/ws"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}
