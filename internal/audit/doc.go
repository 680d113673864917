// Package audit persists one row per viewer outcome.
//
// FileSink writes the per-run JSON array and CSV files operators grep after a
// run. Store keeps the same rows, plus one row per run, in SQLite so the CLI
// and the daemon API can list history. Multi fans a record out to several
// sinks; the metrics collector is usually one of them.
package audit
