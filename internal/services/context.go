package services

import "context"

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	libraryKey   contextKey = "library"
	groupKey     contextKey = "group"
	requestIDKey contextKey = "request_id"
)

// WithRunID annotates context with the identifier of the current sync run.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithLibrary annotates context with the library being processed.
func WithLibrary(ctx context.Context, library string) context.Context {
	if library == "" {
		return ctx
	}
	return context.WithValue(ctx, libraryKey, library)
}

// LibraryFromContext returns the library name if present.
func LibraryFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(libraryKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithGroup annotates context with the viewer group being processed.
func WithGroup(ctx context.Context, group string) context.Context {
	if group == "" {
		return ctx
	}
	return context.WithValue(ctx, groupKey, group)
}

// GroupFromContext returns the viewer group if present.
func GroupFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(groupKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
