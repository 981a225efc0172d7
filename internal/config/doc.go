// Package config loads, normalizes, and validates legate configuration.
//
// It supplies repository defaults, expands tilde paths, and reads the TOML
// config file. The Config type centralizes every knob the daemon needs:
// seat identity, the DRM device to manage, lock file placement, device
// watching, and log output.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
