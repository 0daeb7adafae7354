// Package oruconfig loads the ambient configuration cmd/oru needs:
// database path, device id override, remote path, date/weekday display
// preferences, and the timezone database name due_at comparisons run
// against. These are explicitly external to the core (spec.md section 6
// lists them as "consumed, not defined by the core"), but the loader
// itself still follows the teacher's idiom of a real TOML dependency
// rather than a hand-rolled flag parser, and validates the one field it
// can check meaningfully on its own: the timezone name.
package oruconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tchayen/oru/internal/validate"
)

// Config is the on-disk shape of cmd/oru's config file.
type Config struct {
	DBPath       string `toml:"db_path"`
	DeviceID     string `toml:"device_id"`
	RemotePath   string `toml:"remote_path"`
	DateFormat   string `toml:"date_format"`
	FirstWeekday string `toml:"first_weekday"`
	Timezone     string `toml:"timezone"`
}

// DefaultDBPath is spec.md section 6's default on-disk location.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".oru/oru.db"
	}
	return filepath.Join(home, ".oru", "oru.db")
}

// Load reads and parses the TOML config file at path. A missing file is
// not an error: Load returns a Config with DBPath defaulted.
func Load(path string) (Config, error) {
	cfg := Config{DBPath: DefaultDBPath()}
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("oruconfig: parse %s: %w", path, err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	if err := validate.Timezone(cfg.Timezone); err != nil {
		return Config{}, fmt.Errorf("oruconfig: %s: %w", path, err)
	}
	return cfg, nil
}
