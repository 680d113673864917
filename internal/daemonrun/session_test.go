package daemonrun_test

import (
	"errors"
	"testing"

	"defaulter/internal/daemonrun"
	"defaulter/internal/logging"
	"defaulter/internal/services"
	"defaulter/internal/testsupport"
)

const rulesDocument = `groups:
  family: [alice]
filters:
  Movies:
    family:
      audio:
        - include: {language: English}
`

func TestOpenSessionWiresCollaborators(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRules(rulesDocument))

	session, err := daemonrun.OpenSession(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("OpenSession returned error: %v", err)
	}
	defer session.Close()

	if session.Manager == nil || session.Store == nil || session.Metrics == nil || session.Client == nil {
		t.Fatalf("expected every collaborator to be set: %+v", session)
	}
	if got := session.Rules.Libraries; len(got) != 1 || got[0].Library != "Movies" {
		t.Fatalf("unexpected libraries %+v", got)
	}
	if session.Store.Path() != cfg.Audit.DatabasePath {
		t.Fatalf("expected store at %q, got %q", cfg.Audit.DatabasePath, session.Store.Path())
	}
}

func TestOpenSessionRejectsMissingRules(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	if _, err := daemonrun.OpenSession(cfg, logging.NewNop()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCloseNilSession(t *testing.T) {
	var session *daemonrun.Session
	if err := session.Close(); err != nil {
		t.Fatalf("Close on nil session returned %v", err)
	}
}
