// Package config loads, normalizes, and validates camtrap configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and applies CAMTRAP_* environment overrides.
// The Config type centralizes every knob the daemon and CLI need so camera,
// detection and integration settings are discovered in one pass.
//
// Every load failure is tagged with services.ErrConfiguration: configuration
// problems are fatal at startup and surfaced to the operator.
package config
