// Package notifications delivers camera trap events as ntfy push messages.
//
// NewService returns a no-op implementation when no topic is configured.
// Per-event toggles in the [notifications] config section suppress captures
// or device faults individually.
package notifications
