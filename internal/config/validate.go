package config

import (
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSeat(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSeat() error {
	if c.Seat.Name == "" {
		return fmt.Errorf("seat.name must not be empty")
	}
	if c.Seat.DRMDevice != "" && !strings.HasPrefix(c.Seat.DRMDevice, "/dev/") {
		return fmt.Errorf("seat.drm_device %q must be a /dev path", c.Seat.DRMDevice)
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.Daemon.LockPath == "" {
		return fmt.Errorf("daemon.lock_path must not be empty")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not console or json", c.Logging.Format)
	}
	return nil
}
