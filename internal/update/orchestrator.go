package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"defaulter/internal/logging"
	"defaulter/internal/selection"
	"defaulter/internal/services"
)

// ErrRunAborted is returned when a viewer exhausted its retry budget. The
// caller must stop the whole run.
var ErrRunAborted = errors.New("run aborted")

const (
	defaultMaxAttempts  = 10
	defaultRetryBackoff = 30 * time.Second
	defaultPacing       = 100 * time.Millisecond
)

// Options tunes the apply loop.
type Options struct {
	DryRun bool
	// MaxAttempts bounds calls per viewer before the run aborts.
	MaxAttempts int
	// RetryBackoff is the fixed wait between attempts.
	RetryBackoff time.Duration
	// Pacing is the wait after every viewer step that made a request.
	Pacing time.Duration
	// SkipInaccessible records HTTP 403 as a skip instead of retrying.
	SkipInaccessible bool
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	} else if o.RetryBackoff == 0 {
		o.RetryBackoff = defaultRetryBackoff
	}
	if o.Pacing < 0 {
		o.Pacing = 0
	} else if o.Pacing == 0 {
		o.Pacing = defaultPacing
	}
	return o
}

// Dependencies are the collaborators of an Orchestrator. Audit and Reporter
// may be nil.
type Dependencies struct {
	Tokens   TokenStore
	Client   MediaClient
	Audit    AuditSink
	Reporter SummaryReporter
	Stats    *RunStats
	Logger   *slog.Logger
	// Sleep and Now default to real time; tests replace them.
	Sleep func(context.Context, time.Duration) error
	Now   func() time.Time
}

// GroupPlans lists the plans of one viewer group in fetch order.
type GroupPlans struct {
	Group string
	Plans []selection.Plan
}

// Orchestrator applies plans viewer by viewer. Calls are strictly
// sequential; at most one request is in flight.
type Orchestrator struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
}

// New builds an orchestrator.
func New(deps Dependencies, opts Options) *Orchestrator {
	if deps.Stats == nil {
		deps.Stats = NewRunStats()
	}
	if deps.Sleep == nil {
		deps.Sleep = SleepContext
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: logging.NewComponentLogger(deps.Logger, "updater"),
	}
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Apply walks groups, plans and viewers in order. It returns an error
// wrapping ErrRunAborted once a viewer exhausts its retries, or the context
// error when ctx ends during a wait. Either way no further work is started.
func (o *Orchestrator) Apply(ctx context.Context, library string, groups []GroupPlans, viewers map[string][]string) error {
	for _, gp := range groups {
		members := viewers[gp.Group]
		for _, plan := range gp.Plans {
			if len(members) == 0 {
				logging.WarnWithContext(o.logger, "no viewers in group; skipping plan", "group_empty",
					logging.String(logging.FieldLibrary, library),
					logging.String(logging.FieldGroup, gp.Group),
					logging.Int64("part_id", plan.PartID),
					logging.String(logging.FieldErrorHint, "check group members and their library access"),
					logging.String(logging.FieldImpact, "defaults not updated for this group"),
				)
				continue
			}
			if err := o.applyPlan(ctx, library, gp.Group, plan, members); err != nil {
				return err
			}
			o.logger.Debug("part update complete for group",
				logging.String(logging.FieldLibrary, library),
				logging.String(logging.FieldGroup, gp.Group),
				logging.Int64("part_id", plan.PartID),
			)
		}
	}
	return nil
}

func (o *Orchestrator) applyPlan(ctx context.Context, library, group string, plan selection.Plan, members []string) error {
	summary := Summary{
		Library:   library,
		Group:     group,
		PartID:    plan.PartID,
		RatingKey: plan.RatingKey,
		Title:     plan.Title,
	}
	for _, viewer := range members {
		outcome, requested, err := o.applyViewer(ctx, library, group, viewer, plan)
		o.record(ctx, outcome)
		summary.Viewers = append(summary.Viewers, viewerSummary(outcome))
		if err != nil {
			o.report(summary)
			return err
		}
		if !requested {
			continue
		}
		if err := o.deps.Sleep(ctx, o.opts.Pacing); err != nil {
			o.report(summary)
			return err
		}
	}
	o.report(summary)
	return nil
}

// applyViewer returns the viewer's outcome, whether a request was made and a
// run-ending error.
func (o *Orchestrator) applyViewer(ctx context.Context, library, group, viewer string, plan selection.Plan) (Outcome, bool, error) {
	outcome := Outcome{
		Library:   library,
		Group:     group,
		Viewer:    viewer,
		Plan:      plan,
		StartedAt: o.deps.Now(),
	}
	logger := o.logger.With(
		logging.String(logging.FieldGroup, group),
		logging.String("viewer", viewer),
		logging.Int64("part_id", plan.PartID),
	)

	token, ok := o.lookup(viewer)
	if !ok {
		logging.WarnWithContext(logger, "no access token for viewer; skipping update", "viewer_no_token",
			logging.String(logging.FieldErrorHint, "add the viewer to managed_users or share the server with them"),
			logging.String(logging.FieldImpact, "viewer keeps current defaults"),
		)
		outcome.Status = StatusSkipped
		outcome.Reason = ReasonNoToken
		return outcome, false, nil
	}
	if o.opts.DryRun {
		logger.Info("dry run; update not sent",
			logging.String("action", ActionType(plan)),
			logging.String(logging.FieldEventType, "dry_run"),
		)
		outcome.Status = StatusDryRun
		return outcome, false, nil
	}

	o.deps.Stats.recordProcessed()
	var lastErr error
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		resp, err := o.deps.Client.SetDefaultStreams(ctx, viewer, token, plan)
		if err == nil {
			outcome.HTTPStatus = resp.StatusCode
			outcome.Duration = o.deps.Now().Sub(outcome.StartedAt)
			if resp.StatusCode == http.StatusOK {
				outcome.Status = StatusSuccess
				o.deps.Stats.recordSuccess()
				logger.Debug("default streams updated", logging.String("action", ActionType(plan)))
			} else {
				outcome.Status = StatusError
				outcome.Reason = fmt.Sprintf("HTTP %d", resp.StatusCode)
				o.deps.Stats.recordFailure()
				logging.WarnWithContext(logger, "unexpected response status; not retrying", "update_unexpected_status",
					logging.Int("http_status", resp.StatusCode),
					logging.String(logging.FieldImpact, "viewer keeps current defaults"),
				)
			}
			return outcome, true, nil
		}

		status := statusOf(err)
		if status == http.StatusForbidden && o.opts.SkipInaccessible {
			outcome.Status = StatusSkipped
			outcome.Reason = fmt.Sprintf("HTTP %d", status)
			outcome.HTTPStatus = status
			outcome.Duration = o.deps.Now().Sub(outcome.StartedAt)
			o.deps.Stats.recordSkip(viewer)
			logging.WarnWithContext(logger, "item inaccessible for viewer; skipping", "update_inaccessible",
				logging.String("title", plan.Title),
				logging.String("token", logging.MaskToken(token)),
				logging.String(logging.FieldErrorHint, "check the viewer's content restrictions"),
				logging.String(logging.FieldImpact, "viewer keeps current defaults for this item"),
			)
			return outcome, true, nil
		}

		lastErr = err
		outcome.HTTPStatus = status
		if attempt == o.opts.MaxAttempts {
			break
		}
		attrs := []logging.Attr{
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", o.opts.MaxAttempts),
			logging.Duration("retry_in", o.opts.RetryBackoff),
			logging.Error(err),
		}
		if status == http.StatusForbidden {
			attrs = append(attrs, logging.String(logging.FieldErrorHint, "age ratings may hide items; ensure the viewer can access every item in the library"))
		}
		logging.ErrorWithContext(logger, "update attempt failed; retrying", "update_retry", attrs...)
		if err := o.deps.Sleep(ctx, o.opts.RetryBackoff); err != nil {
			outcome.Status = StatusError
			outcome.Reason = err.Error()
			outcome.Duration = o.deps.Now().Sub(outcome.StartedAt)
			o.deps.Stats.recordFailure()
			return outcome, true, err
		}
	}

	outcome.Status = StatusError
	outcome.Reason = reasonOf(lastErr)
	outcome.Duration = o.deps.Now().Sub(outcome.StartedAt)
	o.deps.Stats.recordFailure()
	logging.ErrorWithContext(logger, "all update attempts failed; aborting run", "update_fatal",
		logging.Int("max_attempts", o.opts.MaxAttempts),
		logging.Error(lastErr),
		logging.String(logging.FieldErrorHint, "verify the media server is reachable before restarting"),
	)
	return outcome, true, fmt.Errorf("%w: viewer %s exhausted %d attempts: %w", ErrRunAborted, viewer, o.opts.MaxAttempts, lastErr)
}

func (o *Orchestrator) lookup(viewer string) (string, bool) {
	if o.deps.Tokens == nil {
		return "", false
	}
	token, ok := o.deps.Tokens.Lookup(viewer)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func (o *Orchestrator) record(ctx context.Context, outcome Outcome) {
	if o.deps.Audit == nil {
		return
	}
	runID, _ := services.RunIDFromContext(ctx)
	if err := o.deps.Audit.Append(outcome.Record(runID)); err != nil {
		logging.WarnWithContext(o.logger, "audit append failed", "audit_append_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "outcome missing from audit trail"),
		)
	}
}

func (o *Orchestrator) report(summary Summary) {
	if o.deps.Reporter != nil {
		o.deps.Reporter.Report(summary)
	}
}

func statusOf(err error) int {
	var coder StatusCoder
	if errors.As(err, &coder) {
		return coder.HTTPStatus()
	}
	return 0
}

func reasonOf(err error) string {
	if err == nil {
		return "Unknown error"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	if status := statusOf(err); status != 0 {
		return http.StatusText(status)
	}
	return "Unknown error"
}

// SleepContext waits for d or until ctx is done. A non-positive d only
// reports cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
