package services_test

import (
	"context"
	"testing"

	"defaulter/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithLibrary(ctx, "Movies")
	ctx = services.WithGroup(ctx, "family")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if library, ok := services.LibraryFromContext(ctx); !ok || library != "Movies" {
		t.Fatalf("unexpected library: %v %v", library, ok)
	}
	if group, ok := services.GroupFromContext(ctx); !ok || group != "family" {
		t.Fatalf("unexpected group: %v %v", group, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithLibrary(ctx, "")
	ctx = services.WithRunID(ctx, "")
	if _, ok := services.LibraryFromContext(ctx); ok {
		t.Fatal("expected no library value")
	}
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected no run id value")
	}
}
