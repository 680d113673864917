package testsupport

import (
	"testing"

	"defaulter/internal/audit"
	"defaulter/internal/config"
)

// MustOpenStore opens the audit store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *audit.Store {
	t.Helper()

	store, err := audit.OpenFromConfig(cfg)
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
