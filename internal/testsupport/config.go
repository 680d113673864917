package testsupport

import (
	"path/filepath"
	"testing"

	"defaulter/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry backoff and pacing are zero so tests never wait on real time.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.RulesPath = filepath.Join(base, "rules.yaml")
	cfgVal.Plex.URL = "http://127.0.0.1:32400"
	cfgVal.Plex.OwnerName = "owner"
	cfgVal.Plex.OwnerToken = "owner-token"
	cfgVal.Plex.ClientIdentifier = "test-client"
	cfgVal.Plex.MetadataRequestsPerSecond = 0
	cfgVal.Run.MaxAttempts = 3
	cfgVal.Run.RetryBackoffSeconds = 0
	cfgVal.Run.PacingMillis = 0
	cfgVal.Audit.Dir = filepath.Join(base, "audit")
	cfgVal.Audit.DatabasePath = filepath.Join(base, "audit", "audit.db")
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return builder.cfg
}

// WithPlexURL points the config at a test server.
func WithPlexURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Plex.URL = url
		b.cfg.Plex.PlexTVURL = url
	}
}

// WithManagedUsers registers managed viewer tokens.
func WithManagedUsers(users map[string]string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ManagedUsers = users
	}
}

// WithDryRun toggles the dry-run flag.
func WithDryRun(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Run.DryRun = enabled
	}
}

// WithRules writes a rules document and points the config at it.
func WithRules(document string) ConfigOption {
	return func(b *configBuilder) {
		WriteFile(b.t, b.cfg.RulesPath, document)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.RulesPath)
}
