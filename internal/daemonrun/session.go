package daemonrun

import (
	"errors"
	"fmt"
	"log/slog"

	"defaulter/internal/audit"
	"defaulter/internal/config"
	"defaulter/internal/metrics"
	"defaulter/internal/notifications"
	"defaulter/internal/rules"
	"defaulter/internal/services/plex"
	"defaulter/internal/summary"
	"defaulter/internal/workflow"
)

// Session bundles the collaborators of one workflow manager. The CLI and the
// daemon build it the same way.
type Session struct {
	Config  *config.Config
	Rules   *rules.Set
	Client  *plex.Client
	Store   *audit.Store
	Metrics *metrics.Collector
	Manager *workflow.Manager
}

// OpenSession loads the rules document, opens the audit database and wires
// the workflow manager. Close releases the database.
func OpenSession(cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	set, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	store, err := audit.OpenFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	client := plex.NewFromConfig(cfg, logger)
	collector := metrics.New()
	manager, err := workflow.NewManager(workflow.Dependencies{
		Config:   cfg,
		Rules:    set,
		Source:   client,
		Store:    store,
		Metrics:  collector,
		Reporter: summary.FromConfig(cfg.Summary, logger),
		Notifier: notifications.NewService(cfg),
		Logger:   logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &Session{
		Config:  cfg,
		Rules:   set,
		Client:  client,
		Store:   store,
		Metrics: collector,
		Manager: manager,
	}, nil
}

// Close releases the audit database.
func (s *Session) Close() error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.Close()
}
