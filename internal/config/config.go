// Package config resolves the data directory, environment overrides
// and the settings.json file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the environment-supplied settings for the core layer.
type Config struct {
	// Dir overrides the data directory (default ~/.treeline).
	Dir string `envconfig:"TREELINE_DIR"`
	// DBKey is a pre-derived hex encryption key; when set, no key
	// derivation is needed to open an encrypted database.
	DBKey string `envconfig:"TL_DB_KEY"`
	// DBPassword triggers key derivation using the sidecar parameters.
	DBPassword string `envconfig:"TL_DB_PASSWORD"`
	// DemoMode overrides the settings file: true|1|yes or false|0|no.
	DemoMode string `envconfig:"TREELINE_DEMO_MODE"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if cfg.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		cfg.Dir = filepath.Join(home, ".treeline")
	}
	return &cfg, nil
}

// DemoModeOverride interprets the TREELINE_DEMO_MODE variable. The
// second return is false when the variable is unset or unrecognized.
func (c *Config) DemoModeOverride() (value, ok bool) {
	return ParseBoolFlag(c.DemoMode)
}

// ParseBoolFlag parses the env-style booleans true|1|yes and
// false|0|no, case-insensitively.
func ParseBoolFlag(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}

// DBPath returns the database file path for the given mode.
func (c *Config) DBPath(demo bool) string {
	if demo {
		return filepath.Join(c.Dir, "demo.duckdb")
	}
	return filepath.Join(c.Dir, "treeline.duckdb")
}

// LogsPath returns the event-log database path.
func (c *Config) LogsPath() string {
	return filepath.Join(c.Dir, "logs.duckdb")
}

// BackupsDir returns the backup archive directory.
func (c *Config) BackupsDir() string {
	return filepath.Join(c.Dir, "backups")
}

// SettingsPath returns the settings.json path.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Dir, "settings.json")
}

// EncryptionSidecarPath returns the encryption.json path.
func (c *Config) EncryptionSidecarPath() string {
	return filepath.Join(c.Dir, "encryption.json")
}
