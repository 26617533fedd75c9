// Package logging wraps log/slog with the attribute helpers and standardized
// field names used across the daemon, CLI, and pipeline stages.
//
// Loggers are built from config (level, format, output paths) and enriched
// per-item via WithContext, which lifts file/stage/batch identifiers out of
// the request context so every stage log line is correlated automatically.
package logging
