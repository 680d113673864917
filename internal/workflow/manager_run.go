package workflow

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"defaulter/internal/audit"
	"defaulter/internal/logging"
	"defaulter/internal/notifications"
	"defaulter/internal/rules"
	"defaulter/internal/selection"
	"defaulter/internal/services"
	"defaulter/internal/services/plex"
	"defaulter/internal/update"
	"defaulter/internal/viewers"
)

// session carries the per-run collaborators.
type session struct {
	report *RunReport
	orch   *update.Orchestrator
	files  *audit.FileSink
	stats  *update.RunStats
}

// Run performs a clean or partial run over every configured library. It
// returns an error wrapping update.ErrRunAborted when a viewer exhausted its
// retries; the report is returned either way once the run started.
func (m *Manager) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	if opts.Mode != ModeClean && opts.Mode != ModePartial {
		return nil, services.Wrap(services.ErrValidation, "workflow", "run", "mode must be clean or partial", nil)
	}
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if err := m.ensurePrepared(ctx); err != nil {
		return nil, err
	}

	dryRun := opts.DryRun || m.cfg.Run.DryRun
	sess, ctx, err := m.begin(ctx, opts.Mode, dryRun, true)
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, m.logger)
	logger.Info("starting run",
		logging.String("mode", string(opts.Mode)),
		logging.Bool("dry_run", dryRun),
		logging.String(logging.FieldEventType, "run_start"),
	)

	var runErr error
	advanced := make(map[string]int64)
	for _, lib := range m.rules.Libraries {
		var since int64
		if opts.Mode == ModePartial {
			since = m.highWaterFor(lib.Library)
		}
		latest, err := m.runLibrary(ctx, sess, lib, since)
		if err != nil {
			runErr = err
			break
		}
		if latest > 0 {
			advanced[lib.Library] = latest
		}
	}
	if !dryRun && runErr == nil {
		m.advanceHighWater(advanced)
	}
	return m.finish(ctx, sess, runErr)
}

// runLibrary processes one configured library and returns the newest
// updatedAt seen.
func (m *Manager) runLibrary(ctx context.Context, sess *session, lib rules.LibraryFilters, since int64) (int64, error) {
	section := m.section(lib.Library)
	ctx = services.WithLibrary(ctx, section.Title)
	logger := logging.WithContext(ctx, m.logger)
	logger.Info("processing library", logging.String("section_type", section.Type), logging.Int64("since", since))

	items, err := m.source.Items(ctx, section.Key, since)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		logging.WarnWithContext(logger, "library items unavailable; skipping library", "library_items_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no defaults updated for this library in this run"),
		)
		return 0, nil
	}
	if len(items) == 0 {
		logger.Info("no changes detected since the last run")
		return 0, nil
	}

	members, err := m.membersWithAccess(ctx, lib, section)
	if err != nil {
		return 0, err
	}
	if !anyMembers(members) {
		logging.WarnWithContext(logger, "no viewers have access to library; skipping", "library_no_viewers",
			logging.String(logging.FieldErrorHint, "check group members and library sharing"),
		)
		return 0, nil
	}

	var latest int64
	for _, item := range items {
		latest = max(latest, item.UpdatedAt)
		keys, err := m.expand(ctx, section.Type, item)
		if err != nil {
			return 0, err
		}
		if err := m.applyItems(ctx, sess, lib, section, members, keys); err != nil {
			return 0, err
		}
	}
	return latest, nil
}

// expand turns a library entry into the rating keys of playable items. Shows
// expand through seasons into episodes.
func (m *Manager) expand(ctx context.Context, sectionType string, item plex.Item) ([]string, error) {
	itemType := item.Type
	if itemType == "" {
		itemType = sectionType
	}
	switch itemType {
	case EventShow:
		return m.expandShow(ctx, item.RatingKey)
	case EventSeason:
		return m.expandSeason(ctx, item.RatingKey)
	default:
		return []string{item.RatingKey}, nil
	}
}

func (m *Manager) expandShow(ctx context.Context, ratingKey string) ([]string, error) {
	seasons, err := m.source.Children(ctx, ratingKey)
	if err != nil {
		return nil, m.skipFetch(ctx, "show children unavailable; skipping show", ratingKey, err)
	}
	if len(seasons) == 0 {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "no seasons found for show", "show_empty",
			logging.String("rating_key", ratingKey),
		)
		return nil, nil
	}
	var keys []string
	for _, season := range seasons {
		episodes, err := m.expandSeason(ctx, season.RatingKey)
		if err != nil {
			return nil, err
		}
		keys = append(keys, episodes...)
	}
	return keys, nil
}

func (m *Manager) expandSeason(ctx context.Context, ratingKey string) ([]string, error) {
	episodes, err := m.source.Children(ctx, ratingKey)
	if err != nil {
		return nil, m.skipFetch(ctx, "season children unavailable; skipping season", ratingKey, err)
	}
	if len(episodes) == 0 {
		logging.WithContext(ctx, m.logger).Info("no episodes found for season", logging.String("rating_key", ratingKey))
		return nil, nil
	}
	keys := make([]string, 0, len(episodes))
	for _, episode := range episodes {
		keys = append(keys, episode.RatingKey)
	}
	return keys, nil
}

// skipFetch logs a failed metadata read. Only cancellation ends the run.
func (m *Manager) skipFetch(ctx context.Context, msg, ratingKey string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logging.WarnWithContext(logging.WithContext(ctx, m.logger), msg, "metadata_fetch_failed",
		logging.String("rating_key", ratingKey),
		logging.Error(err),
	)
	return nil
}

// applyItems resolves each item's part against every group filter and applies
// the resulting plans.
func (m *Manager) applyItems(ctx context.Context, sess *session, lib rules.LibraryFilters, section plex.Library, members map[string][]string, keys []string) error {
	for _, key := range keys {
		part, err := m.source.Part(ctx, key)
		if err != nil {
			if err := m.skipFetch(ctx, "item streams unavailable; skipping item", key, err); err != nil {
				return err
			}
			continue
		}
		var groups []update.GroupPlans
		for _, gf := range lib.Groups {
			plan, err := m.resolver.Resolve(part, gf.Filter)
			if err != nil {
				logging.WarnWithContext(logging.WithContext(ctx, m.logger), "rule evaluation failed; skipping part for group", "rule_evaluation_failed",
					logging.String("group", gf.Group),
					logging.String("rating_key", key),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check on_match overrides in the rules file"),
				)
				continue
			}
			if plan == nil {
				continue
			}
			groups = append(groups, update.GroupPlans{Group: gf.Group, Plans: []selection.Plan{*plan}})
		}
		if len(groups) > 0 {
			if err := sess.orch.Apply(ctx, section.Title, groups, members); err != nil {
				return err
			}
		}
		if err := m.sleep(ctx, m.cfg.Pacing()); err != nil {
			return err
		}
	}
	return nil
}

// membersWithAccess expands each group and drops viewers whose token cannot
// read the library. Tokenless members stay so their skip is audited.
func (m *Manager) membersWithAccess(ctx context.Context, lib rules.LibraryFilters, section plex.Library) (map[string][]string, error) {
	registry := m.Registry()
	logger := logging.WithContext(ctx, m.logger)
	checked := make(map[string]bool)
	out := make(map[string][]string, len(lib.Groups))
	for _, gf := range lib.Groups {
		var allowed []string
		for _, viewer := range viewers.Members(m.rules, gf.Group, registry) {
			token, ok := registry.Lookup(viewer)
			if !ok {
				allowed = append(allowed, viewer)
				continue
			}
			access, seen := checked[viewer]
			if !seen {
				err := m.source.CheckAccess(ctx, token, section.Key)
				if err != nil && ctx.Err() != nil {
					return nil, ctx.Err()
				}
				access = err == nil
				checked[viewer] = access
				if access {
					logger.Debug("viewer can access library",
						logging.String(logging.FieldGroup, gf.Group),
						logging.String("viewer", viewer),
					)
				} else {
					logging.WarnWithContext(logger, "viewer cannot access library; skipping during updates", "viewer_no_access",
						logging.String(logging.FieldGroup, gf.Group),
						logging.String("viewer", viewer),
						logging.Error(err),
					)
				}
				if err := m.sleep(ctx, m.cfg.Pacing()); err != nil {
					return nil, err
				}
			}
			if access {
				allowed = append(allowed, viewer)
			}
		}
		out[gf.Group] = allowed
	}
	return out, nil
}

func anyMembers(members map[string][]string) bool {
	for _, list := range members {
		if len(list) > 0 {
			return true
		}
	}
	return false
}

// begin resets the counters, opens the audit sinks and stores the run row.
func (m *Manager) begin(ctx context.Context, mode Mode, dryRun, withFiles bool) (*session, context.Context, error) {
	started := m.now()
	report := &RunReport{
		ID:        uuid.NewString(),
		Mode:      mode,
		DryRun:    dryRun,
		StartedAt: started.UTC(),
		Result:    audit.ResultRunning,
	}
	ctx = services.WithRunID(ctx, report.ID)

	stats := update.NewRunStats()
	sess := &session{report: report, stats: stats}
	var sinks audit.Multi
	if withFiles && m.cfg.Audit.Dir != "" {
		files, err := audit.NewFileSink(m.cfg.Audit.Dir, started)
		if err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, m.logger), "audit files unavailable", "audit_open_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "outcomes recorded in the database only"),
			)
		} else {
			sess.files = files
			report.AuditFiles = []string{files.JSONPath(), files.CSVPath()}
			sinks = append(sinks, files)
		}
	}
	if m.store != nil {
		if err := m.store.BeginRun(ctx, audit.Run{ID: report.ID, Mode: string(mode), DryRun: dryRun, StartedAt: report.StartedAt}); err != nil {
			if sess.files != nil {
				_ = sess.files.Close()
			}
			return nil, ctx, err
		}
		sinks = append(sinks, m.store)
	}
	if m.metrics != nil {
		sinks = append(sinks, m.metrics)
	}

	var sink update.AuditSink
	if len(sinks) > 0 {
		sink = sinks
	}
	sess.orch = update.New(update.Dependencies{
		Tokens:   m.Registry(),
		Client:   m.source,
		Audit:    sink,
		Reporter: m.reporter,
		Stats:    stats,
		Logger:   m.logger,
		Sleep:    m.sleep,
		Now:      m.now,
	}, m.orchestratorOptions(dryRun))

	m.mu.Lock()
	m.running = true
	m.stats = stats
	m.mu.Unlock()
	return sess, ctx, nil
}

// orchestratorOptions converts config values. A configured zero means no
// wait, which update.Options spells as a negative duration.
func (m *Manager) orchestratorOptions(dryRun bool) update.Options {
	backoff := m.cfg.RetryBackoff()
	if backoff == 0 {
		backoff = -1
	}
	pacing := m.cfg.Pacing()
	if pacing == 0 {
		pacing = -1
	}
	return update.Options{
		DryRun:           dryRun,
		MaxAttempts:      m.cfg.Run.MaxAttempts,
		RetryBackoff:     backoff,
		Pacing:           pacing,
		SkipInaccessible: m.cfg.Run.SkipInaccessibleItems,
	}
}

// finish closes the sinks, stores the outcome of the run and logs the run
// summary.
func (m *Manager) finish(ctx context.Context, sess *session, runErr error) (*RunReport, error) {
	report := sess.report
	finished := m.now()
	report.FinishedAt = finished.UTC()
	report.Stats = sess.stats.Snapshot()
	report.Result = resultOf(runErr)
	if runErr != nil {
		report.Error = runErr.Error()
	}
	logger := logging.WithContext(ctx, m.logger)

	if sess.files != nil {
		if err := sess.files.Close(); err != nil {
			logging.WarnWithContext(logger, "audit files did not close cleanly", "audit_close_failed", logging.Error(err))
		}
	}
	// The run context may already be cancelled; the final row still has to
	// land.
	persistCtx := context.WithoutCancel(ctx)
	if m.store != nil {
		if err := m.store.FinishRun(persistCtx, report.ID, report.FinishedAt, report.Result, report.Stats, runErr); err != nil {
			logging.WarnWithContext(logger, "run row not updated", "run_finish_failed", logging.Error(err))
		}
	}
	if m.metrics != nil {
		m.metrics.ObserveRun(string(report.Mode), report.Result, finished)
	}
	m.prune(persistCtx, sess, finished)

	logRunSummary(logger, report)
	m.notify(persistCtx, report, runErr)

	m.mu.Lock()
	m.running = false
	m.lastRun = report
	m.mu.Unlock()
	return report, runErr
}

// prune applies audit retention to run files and database rows.
func (m *Manager) prune(ctx context.Context, sess *session, now time.Time) {
	days := m.cfg.Audit.RetentionDays
	if days <= 0 {
		return
	}
	if sess.files != nil {
		audit.PruneRunFiles(m.logger, m.cfg.Audit.Dir, days, now, sess.report.AuditFiles...)
	}
	if m.store != nil {
		cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
		if removed, err := m.store.PruneBefore(ctx, cutoff); err != nil {
			logging.WarnWithContext(m.logger, "audit database retention failed", "audit_prune_failed", logging.Error(err))
		} else if removed > 0 {
			m.logger.Info("pruned audit runs", logging.Int64("removed", removed))
		}
	}
}

// notify alerts on aborted runs and, when enabled, on finished scheduled or
// manual runs. Webhook events never notify on completion.
func (m *Manager) notify(ctx context.Context, report *RunReport, runErr error) {
	if m.notifier == nil {
		return
	}
	var err error
	switch {
	case errors.Is(runErr, update.ErrRunAborted):
		err = m.notifier.NotifyRunAborted(ctx, string(report.Mode), runErr)
	case m.cfg.Notifications.OnRunCompleted && report.Mode != ModeEvent:
		err = m.notifier.NotifyRunCompleted(ctx, notifications.RunSummary{
			Mode:     string(report.Mode),
			DryRun:   report.DryRun,
			Result:   report.Result,
			Stats:    report.Stats,
			Duration: report.FinishedAt.Sub(report.StartedAt),
		})
	}
	if err != nil {
		logging.WarnWithContext(m.logger, "run notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

func logRunSummary(logger *slog.Logger, report *RunReport) {
	logger.Info("run summary",
		logging.String("mode", string(report.Mode)),
		logging.String("result", report.Result),
		logging.Int("processed", report.Stats.Processed),
		logging.Int("succeeded", report.Stats.Succeeded),
		logging.Int("failed", report.Stats.Failed),
		logging.Int("skipped", report.Stats.Skipped),
		logging.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
		logging.String(logging.FieldEventType, "run_summary"),
	)
	if len(report.Stats.SkippedByViewer) == 0 {
		logger.Info("skipped inaccessible items by viewer: none")
		return
	}
	for _, viewer := range slices.Sorted(maps.Keys(report.Stats.SkippedByViewer)) {
		logger.Info("skipped inaccessible items",
			logging.String("viewer", viewer),
			logging.Int("count", report.Stats.SkippedByViewer[viewer]),
		)
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return audit.ResultCompleted
	case errors.Is(err, update.ErrRunAborted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return audit.ResultAborted
	default:
		return audit.ResultFailed
	}
}

func (m *Manager) section(name string) plex.Library {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.libraries[name]
}

func (m *Manager) highWaterFor(library string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.highWater[strings.ToLower(library)]
}

func (m *Manager) advanceHighWater(latest map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for library, value := range latest {
		key := strings.ToLower(library)
		if value > m.highWater[key] {
			m.highWater[key] = value
		}
	}
}
