package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"defaulter/internal/audit"
	"defaulter/internal/config"
	"defaulter/internal/logging"
	"defaulter/internal/update"
	"defaulter/internal/workflow"
)

// Runner is the workflow surface the daemon drives.
type Runner interface {
	Prepare(ctx context.Context) error
	Run(ctx context.Context, opts workflow.RunOptions) (*workflow.RunReport, error)
	HandleEvent(ctx context.Context, ev workflow.Event) (workflow.EventResult, error)
	Status() workflow.Status
}

// RunLister reads stored runs for the status API.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]audit.Run, error)
}

// Options carries the optional collaborators of a Daemon.
type Options struct {
	// Runs backs GET /api/runs; nil answers 503.
	Runs RunLister
	// Metrics serves GET /metrics; nil answers 404.
	Metrics http.Handler
}

// Daemon coordinates scheduled runs, the HTTP surface and single-instance
// execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	runner Runner
	opts   Options

	lockPath string
	lock     *flock.Flock
	api      *apiServer
	cron     *cron.Cron

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	fatalOnce sync.Once
	fatal     chan error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool            `json:"running"`
	Workflow     workflow.Status `json:"workflow"`
	LockFilePath string          `json:"lockFilePath"`
	Schedule     string          `json:"schedule,omitempty"`
	APIAddress   string          `json:"apiAddress,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, runner Runner, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || runner == nil {
		return nil, errors.New("daemon requires config and workflow runner")
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		runner:   runner,
		opts:     opts,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		fatal:    make(chan error, 1),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the lock, prepares the session, starts the API and the
// schedule, and kicks off the configured startup run.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another defaulter instance is already running")
	}

	if err := d.runner.Prepare(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("prepare session: %w", err)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		d.release()
		return err
	}
	if err := d.startSchedule(); err != nil {
		d.api.stop()
		d.release()
		return err
	}

	d.running.Store(true)
	d.logger.Info("defaulter daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("dry_run", d.cfg.Run.DryRun),
	)

	if mode, ok := d.startupMode(); ok {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.runAndReport(d.ctx, mode, "startup")
		}()
	}
	return nil
}

func (d *Daemon) startupMode() (workflow.Mode, bool) {
	switch {
	case d.cfg.Run.CleanRunOnStart:
		return workflow.ModeClean, true
	case d.cfg.Run.PartialRunOnStart:
		return workflow.ModePartial, true
	default:
		return "", false
	}
}

// runAndReport performs a run and escalates an abort to Done.
func (d *Daemon) runAndReport(ctx context.Context, mode workflow.Mode, trigger string) {
	d.logger.Info("run triggered", logging.String("mode", string(mode)), logging.String("trigger", trigger))
	_, err := d.runner.Run(ctx, workflow.RunOptions{Mode: mode})
	d.escalate(err, trigger)
}

func (d *Daemon) escalate(err error, trigger string) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) && d.ctx != nil && d.ctx.Err() != nil {
		return
	}
	if errors.Is(err, update.ErrRunAborted) {
		logging.ErrorWithContext(d.logger, "run aborted; shutting down", "daemon_fatal",
			logging.String("trigger", trigger),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "verify the connection to Plex before restarting"),
		)
		d.fatalOnce.Do(func() {
			d.fatal <- err
			close(d.fatal)
		})
		return
	}
	logging.ErrorWithContext(d.logger, "run failed", "run_failed",
		logging.String("trigger", trigger),
		logging.Error(err),
	)
}

// Done delivers the error of a run that aborted. The channel is closed after
// the first abort.
func (d *Daemon) Done() <-chan error {
	return d.fatal
}

// Stop halts the schedule and API, waits for in-flight runs and releases the
// lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
	}
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
	d.api.stop()
	d.wg.Wait()
	d.release()
	d.running.Store(false)
	d.logger.Info("defaulter daemon stopped")
}

func (d *Daemon) release() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		Workflow:     d.runner.Status(),
		LockFilePath: d.lockPath,
	}
	if d.cron != nil {
		status.Schedule = d.cfg.Run.PartialRunCron
	}
	if d.api != nil {
		status.APIAddress = d.api.address()
	}
	return status
}
