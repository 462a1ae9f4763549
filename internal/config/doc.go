// Package config loads, normalizes, and validates meetsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SCRIBERR_API_KEY and MEETSYNC_TELEGRAM_TOKEN. The Config type centralizes
// every knob the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
