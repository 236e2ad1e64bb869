// Package services defines shared utilities consumed by the pipeline stages,
// the HTTP API and the recording client.
//
// Key responsibilities:
//   - Context helpers that stamp submission IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers classify
//     failures with errors.Is (per-clip, per-submission or fatal) and the API
//     can map them to status codes.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
