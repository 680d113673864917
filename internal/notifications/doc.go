// Package notifications delivers run alerts via ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never check whether alerts are enabled. Aborted runs always notify;
// finished runs notify only when notifications.on_run_completed is set, which
// the workflow manager decides before calling in.
package notifications
