package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "storage:\n  path: "+filepath.Join(dir, "settings.db")+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.AdminPort != 8443 {
		t.Errorf("admin port = %d, want 8443", cfg.Server.AdminPort)
	}
	if cfg.Storage.Type != "bolt" {
		t.Errorf("storage type = %q, want bolt", cfg.Storage.Type)
	}
	if cfg.Monitor.PollInterval != "5s" {
		t.Errorf("poll interval = %q, want 5s", cfg.Monitor.PollInterval)
	}
	if cfg.Monitor.BlockCooldown != "500ms" {
		t.Errorf("block cooldown = %q, want 500ms", cfg.Monitor.BlockCooldown)
	}
	if cfg.Budget.DefaultDailyLimitMinutes != 60 {
		t.Errorf("default daily limit = %d, want 60", cfg.Budget.DefaultDailyLimitMinutes)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown storage type", "storage:\n  type: etcd\n"},
		{"bad poll interval", "monitor:\n  poll_interval: sometimes\n"},
		{"negative limit", "budget:\n  default_daily_limit_minutes: -1\n"},
		{"bad admin port", "server:\n  admin_port: 99999\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load accepted invalid config")
			}
		})
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("", 5*time.Second); got != 5*time.Second {
		t.Errorf("Duration(\"\") = %v, want fallback", got)
	}
	if got := Duration("2m", 5*time.Second); got != 2*time.Minute {
		t.Errorf("Duration(\"2m\") = %v, want 2m", got)
	}
	if got := Duration("bogus", time.Second); got != time.Second {
		t.Errorf("Duration(\"bogus\") = %v, want fallback", got)
	}
}
