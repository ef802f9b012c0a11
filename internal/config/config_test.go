package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":3000" {
		t.Errorf("listen = %q, want :3000", cfg.Listen)
	}
	if cfg.TokenMarker != "NEBULA" {
		t.Errorf("token marker = %q, want NEBULA", cfg.TokenMarker)
	}
	if cfg.Timeouts.QRWait.Std() != 30*time.Second {
		t.Errorf("qr_wait = %v, want 30s", cfg.Timeouts.QRWait)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := "listen: \":8080\"\nbot_name: Test Bot\ntimeouts:\n  qr_wait: 10s\n  retention: 1m\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("listen = %q, want :8080", cfg.Listen)
	}
	if cfg.BotName != "Test Bot" {
		t.Errorf("bot_name = %q, want Test Bot", cfg.BotName)
	}
	if cfg.Timeouts.QRWait.Std() != 10*time.Second {
		t.Errorf("qr_wait = %v, want 10s", cfg.Timeouts.QRWait)
	}
	if cfg.Timeouts.Retention.Std() != time.Minute {
		t.Errorf("retention = %v, want 1m", cfg.Timeouts.Retention)
	}
	// Unspecified fields keep their defaults.
	if cfg.Timeouts.Settle.Std() != 3*time.Second {
		t.Errorf("settle = %v, want default 3s", cfg.Timeouts.Settle)
	}
}

func TestLoadPortEnvOverride(t *testing.T) {
	t.Setenv("PORT", "9999")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9999" {
		t.Errorf("listen = %q, want :9999", cfg.Listen)
	}
}

func TestLoadRejectsInvalidTimeouts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("timeouts:\n  qr_wait: 0s\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted qr_wait: 0s")
	}
}
