// Package logging builds the slog loggers used across legate.
//
// It supports console and JSON output with multi-destination writers,
// exposes thin attribute constructors so call sites stay terse, and
// standardizes field keys (component, event_type, error_hint) that the
// daemon relies on when reading its own logs.
//
// Construct loggers through New so every component emits the same shape;
// NewComponentLogger tags a child logger for a subsystem.
package logging
