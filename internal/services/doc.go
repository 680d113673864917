// Package services defines shared utilities consumed by the sync workflow and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, library and group names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can decide
//     whether a failure is worth retrying.
//
// Use these helpers when wiring new integrations so error handling and
// observability stay uniform across the daemon and CLI.
package services
