package services

import "context"

type contextKey string

const (
	commandIDKey   contextKey = "command_id"
	commandKindKey contextKey = "command_kind"
)

// WithCommand annotates context with the device command being executed.
func WithCommand(ctx context.Context, id, kind string) context.Context {
	if id != "" {
		ctx = context.WithValue(ctx, commandIDKey, id)
	}
	if kind != "" {
		ctx = context.WithValue(ctx, commandKindKey, kind)
	}
	return ctx
}

// CommandIDFromContext extracts the command identifier if present.
func CommandIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(commandIDKey).(string)
	return id, ok && id != ""
}

// CommandKindFromContext extracts the command kind if present.
func CommandKindFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	kind, ok := ctx.Value(commandKindKey).(string)
	return kind, ok && kind != ""
}
