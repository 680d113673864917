// Package logging assembles structured slog loggers and formatting helpers used
// across the daemon and CLI.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so run code can tag log lines
// with run IDs, libraries, groups, and correlation IDs. Credentials only reach
// a log line through MaskToken. The package also provides a no-op logger for
// tests and retention pruning for log and audit directories.
package logging
