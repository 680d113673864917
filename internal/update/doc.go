// Package update pushes resolved track selections to the media server, one
// viewer at a time.
//
// Orchestrator.Apply walks groups, plans and viewers in order and records
// exactly one Outcome per (part, group, viewer). Missing credentials and dry
// runs are recorded without a request. Non-200 responses are terminal for
// the viewer, tolerated 403s become skips, and any other failure is retried
// with a fixed backoff until the attempt budget runs out, which aborts the
// whole run with ErrRunAborted.
//
// The collaborator contracts (TokenStore, MediaClient, AuditSink,
// SummaryReporter) live here so implementations can depend on this package
// without cycles.
package update
