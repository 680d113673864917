// Package daemon coordinates the long-running defaulter process.
//
// It wires the workflow manager, the partial-run schedule and the HTTP
// surface (Tautulli webhook, status API, Prometheus metrics) into a single
// lifecycle guarded by a flock so only one instance updates a server. A run
// that aborts after exhausting its retries is reported on Done so the
// process can exit non-zero.
package daemon
