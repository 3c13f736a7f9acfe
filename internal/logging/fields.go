package logging

const (
	// FieldComponent is the structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType is the structured logging key for machine readable event names.
	FieldEventType = "event_type"
	// FieldErrorHint is the structured logging key for operator guidance on failures.
	FieldErrorHint = "error_hint"
	// FieldImpact is the structured logging key for the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldCommandID identifies a device command.
	FieldCommandID = "command_id"
	// FieldCommandKind names the kind of a device command.
	FieldCommandKind = "command_kind"
	// FieldCorrelationID is the structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldSessionID identifies one daemon run.
	FieldSessionID = "session_id"
)
