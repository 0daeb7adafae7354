package oruconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != DefaultDBPath() {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
}

func TestLoad_ParsesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "db_path = \"/tmp/custom/oru.db\"\ndevice_id = \"fixed-device\"\nremote_path = \"/tmp/remote.db\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/custom/oru.db" || cfg.DeviceID != "fixed-device" || cfg.RemotePath != "/tmp/remote.db" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoad_AcceptsValidTimezone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "timezone = \"America/New_York\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Timezone != "America/New_York" {
		t.Fatalf("expected timezone to round-trip, got %q", cfg.Timezone)
	}
}

func TestLoad_RejectsInvalidTimezone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "timezone = \"Not/A_Zone\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}
