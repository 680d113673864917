package daemon

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"defaulter/internal/config"
	"defaulter/internal/logging"
	"defaulter/internal/workflow"
)

// startSchedule registers the partial-run cron job. Dry-run sessions never
// schedule runs.
func (d *Daemon) startSchedule() error {
	expr := d.cfg.Run.PartialRunCron
	if expr == "" {
		return nil
	}
	if d.cfg.Run.DryRun {
		d.logger.Info("dry run enabled; partial run schedule disabled", logging.String("schedule", expr))
		return nil
	}
	cl := cronLogger{logger: d.logger}
	c := cron.New(
		cron.WithParser(config.ScheduleParser()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(expr, func() {
		d.runAndReport(d.ctx, workflow.ModePartial, "schedule")
	}); err != nil {
		return fmt.Errorf("schedule partial runs %q: %w", expr, err)
	}
	c.Start()
	d.cron = c
	d.logger.Info("partial run schedule registered", logging.String("schedule", expr))
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, logging.Error(err))...)
}
