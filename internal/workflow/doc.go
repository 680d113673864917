// Package workflow owns a sync session: the viewer registry, the mapped
// libraries, the rules document and the run statistics.
//
// The Manager prepares a session once (viewer tokens, library discovery,
// startup digest) and then performs clean runs, partial runs driven by an
// in-memory high-water mark, and single-item event runs triggered by the
// webhook. Every run resolves plans per group and hands them to the update
// orchestrator, while run rows, audit files and metrics are written through
// the audit sinks. Runs and events are serialized so at most one update
// request is in flight.
package workflow
