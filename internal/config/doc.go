// Package config loads, normalizes, and validates gantry configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GANTRY_TRACKER_<NAME>_API_KEY. The Config type centralizes every knob the
// daemon and CLI need: staging directories, tracker credentials, worker pool
// sizing, and retry policy parameters.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
