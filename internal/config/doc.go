// Package config loads, normalizes, and validates kiosk configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// KIOSK_TEST (disables the card reader) and KIOSK_NTFY_TOPIC, optionally
// sourced from a .env file. The Config type centralizes every knob the daemon
// and CLI need so data, audio, and log locations are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
