package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Seat identifies the seat this display server manages.
type Seat struct {
	Name      string `toml:"name"`
	DRMDevice string `toml:"drm_device"`
}

// Daemon contains process-level settings.
type Daemon struct {
	LockPath     string `toml:"lock_path"`
	WatchDevices bool   `toml:"watch_devices"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Dir    string `toml:"dir"`
}

// Config is the root configuration document.
type Config struct {
	Seat    Seat    `toml:"seat"`
	Daemon  Daemon  `toml:"daemon"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "legate", "config.toml"), nil
}

// Load reads the config at path, or the default location when path is
// empty. A missing file yields defaults. The returned path is the file
// that was consulted.
func Load(path string) (*Config, string, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		var err error
		resolved, err = DefaultConfigPath()
		if err != nil {
			return nil, "", err
		}
	}
	resolved = expandPath(resolved)

	cfg := Default()
	data, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Defaults apply.
	case err != nil:
		return nil, resolved, fmt.Errorf("read config %s: %w", resolved, err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, resolved, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, resolved, err
	}
	return &cfg, resolved, nil
}

// WriteSample writes the embedded sample config to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	path = expandPath(path)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Render serializes the configuration to TOML.
func (c *Config) Render() (string, error) {
	out, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("render config: %w", err)
	}
	return string(out), nil
}

func (c *Config) normalize() {
	c.Seat.Name = strings.TrimSpace(c.Seat.Name)
	c.Seat.DRMDevice = strings.TrimSpace(c.Seat.DRMDevice)
	c.Daemon.LockPath = expandPath(strings.TrimSpace(c.Daemon.LockPath))
	c.Logging.Dir = expandPath(strings.TrimSpace(c.Logging.Dir))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
