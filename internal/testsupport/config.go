package testsupport

import (
	"path/filepath"
	"testing"

	"legate/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per
// test. It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Seat.Name = "seat-test"
	cfg.Seat.DRMDevice = ""
	cfg.Daemon.LockPath = filepath.Join(base, "legated.lock")
	cfg.Daemon.WatchDevices = false
	cfg.Logging.Dir = filepath.Join(base, "logs")

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithDRMDevice sets the seat's DRM device on the test config.
func WithDRMDevice(path string) ConfigOption {
	return func(c *config.Config) {
		c.Seat.DRMDevice = path
	}
}

// WithWatchDevices toggles udev monitoring on the test config.
func WithWatchDevices(enabled bool) ConfigOption {
	return func(c *config.Config) {
		c.Daemon.WatchDevices = enabled
	}
}
