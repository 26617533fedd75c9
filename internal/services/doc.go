// Package services defines shared utilities consumed by the pipeline stage
// collaborators and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp file entry IDs, stage names, batch IDs, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures for
//     the retry policy (transient vs permanent) without inspecting message
//     text.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
