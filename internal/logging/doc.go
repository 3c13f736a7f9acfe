// Package logging assembles structured slog loggers and formatting helpers used
// across camtrap components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and feeds an in-memory StreamHub so recent log events can be served
// over the HTTP API. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
package logging
