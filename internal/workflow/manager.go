package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"defaulter/internal/config"
	"defaulter/internal/logging"
	"defaulter/internal/notifications"
	"defaulter/internal/rules"
	"defaulter/internal/selection"
	"defaulter/internal/services"
	"defaulter/internal/services/plex"
	"defaulter/internal/update"
	"defaulter/internal/viewers"
)

// Dependencies are the collaborators of a Manager. Store, Metrics, Reporter
// and Notifier may be nil.
type Dependencies struct {
	Config   *config.Config
	Rules    *rules.Set
	Source   MediaSource
	Store    RunStore
	Metrics  RunObserver
	Reporter update.SummaryReporter
	Notifier notifications.Service
	Logger   *slog.Logger
	// Sleep and Now default to real time; tests replace them.
	Sleep func(context.Context, time.Duration) error
	Now   func() time.Time
}

// Manager coordinates sync runs for one session.
type Manager struct {
	cfg      *config.Config
	rules    *rules.Set
	source   MediaSource
	store    RunStore
	metrics  RunObserver
	reporter update.SummaryReporter
	notifier notifications.Service
	logger   *slog.Logger
	resolver *selection.Resolver
	digest   *viewers.Reporter
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time

	// runMu serializes runs and events.
	runMu sync.Mutex

	mu        sync.RWMutex
	prepared  bool
	running   bool
	registry  *viewers.Registry
	libraries map[string]plex.Library
	highWater map[string]int64
	stats     *update.RunStats
	lastRun   *RunReport
}

// NewManager constructs a session manager.
func NewManager(deps Dependencies) (*Manager, error) {
	if deps.Config == nil {
		return nil, errors.New("workflow: config is required")
	}
	if deps.Rules == nil {
		return nil, errors.New("workflow: rules are required")
	}
	if deps.Source == nil {
		return nil, errors.New("workflow: media source is required")
	}
	if deps.Sleep == nil {
		deps.Sleep = update.SleepContext
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := logging.NewComponentLogger(deps.Logger, "workflow")
	return &Manager{
		cfg:       deps.Config,
		rules:     deps.Rules,
		source:    deps.Source,
		store:     deps.Store,
		metrics:   deps.Metrics,
		reporter:  deps.Reporter,
		notifier:  deps.Notifier,
		logger:    logger,
		resolver:  selection.NewResolver(deps.Logger),
		digest:    viewers.NewReporter(deps.Logger),
		sleep:     deps.Sleep,
		now:       deps.Now,
		libraries: make(map[string]plex.Library),
		highWater: make(map[string]int64),
		stats:     update.NewRunStats(),
	}, nil
}

// Prepare loads viewer tokens and maps configured libraries. It logs the
// startup digest once the registry is known.
func (m *Manager) Prepare(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.prepare(ctx)
}

func (m *Manager) prepare(ctx context.Context) error {
	shared, err := m.source.SharedUsers(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.WarnWithContext(m.logger, "shared users unavailable; continuing with owner and managed users", "shared_users_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check plex.client_identifier and the owner token"),
			logging.String(logging.FieldImpact, "shared viewers are skipped as tokenless"),
		)
	}
	accounts := make([]viewers.Account, 0, len(shared))
	for _, user := range shared {
		accounts = append(accounts, viewers.Account{Name: user.Username, Token: user.AccessToken})
	}
	owner := viewers.Account{Name: m.cfg.Plex.OwnerName, Token: m.cfg.Plex.OwnerToken}
	registry := viewers.Build(m.rules, owner, accounts, m.cfg.ManagedUsers)
	if registry.Len() == 0 {
		return services.Wrap(services.ErrConfiguration, "workflow", "prepare", "no viewers with tokens detected", nil)
	}

	libraries, err := m.loadLibraries(ctx, m.cfg.Run.MaxAttempts)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.registry = registry
	m.libraries = libraries
	m.prepared = true
	m.mu.Unlock()

	m.logger.Info("session prepared",
		logging.Int("viewers", registry.Len()),
		logging.Int("libraries", len(libraries)),
		logging.String(logging.FieldEventType, "session_prepared"),
	)
	m.digest.LogDigest(viewers.Digest(m.rules, registry))
	m.digest.LogOwnerSafety(m.rules, registry.Owner())
	m.digest.WarnSharedTokens(registry)
	return nil
}

// loadLibraries maps every library named in the rules to its Plex section.
// Transport failures are retried; a library missing from the server is a
// configuration error.
func (m *Manager) loadLibraries(ctx context.Context, attempts int) (map[string]plex.Library, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var (
		sections []plex.Library
		err      error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		sections, err = m.source.Libraries(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, plex.ErrAuthorizationMissing) {
			return nil, services.Wrap(services.ErrUnauthorized, "workflow", "load libraries", "owner token rejected", err)
		}
		if attempt == attempts {
			break
		}
		logging.ErrorWithContext(m.logger, "library fetch failed; retrying", "libraries_retry",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Duration("retry_in", m.cfg.RetryBackoff()),
			logging.Error(err),
		)
		if err := m.sleep(ctx, m.cfg.RetryBackoff()); err != nil {
			return nil, err
		}
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "load libraries",
			fmt.Sprintf("all %d attempts failed; verify the Plex server is reachable", attempts), err)
	}

	mapped := make(map[string]plex.Library, len(m.rules.Libraries))
	for _, lib := range m.rules.Libraries {
		section, ok := findSection(sections, lib.Library)
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, "workflow", "load libraries",
				fmt.Sprintf("library %q not found in Plex or not a movie/show library", lib.Library), nil)
		}
		mapped[lib.Library] = section
		m.logger.Debug("mapped library",
			logging.String(logging.FieldLibrary, section.Title),
			logging.String("section_key", section.Key),
			logging.String("section_type", section.Type),
		)
	}
	return mapped, nil
}

func findSection(sections []plex.Library, name string) (plex.Library, bool) {
	for _, section := range sections {
		if strings.EqualFold(section.Title, name) {
			return section, true
		}
	}
	return plex.Library{}, false
}

// Registry returns the session registry, or nil before Prepare.
func (m *Manager) Registry() *viewers.Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry
}

func (m *Manager) ensurePrepared(ctx context.Context) error {
	m.mu.RLock()
	prepared := m.prepared
	m.mu.RUnlock()
	if prepared {
		return nil
	}
	return m.prepare(ctx)
}
