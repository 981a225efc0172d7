package logging

// Standardized attribute keys. Keep these stable: log consumers filter on
// them.
const (
	// FieldComponent names the subsystem emitting the record.
	FieldComponent = "component"
	// FieldEventType is a machine-readable event discriminator.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next diagnostic step for a failure.
	FieldErrorHint = "error_hint"
	// FieldImpact states the user-facing consequence of a warning.
	FieldImpact = "impact"
)
