package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"defaulter/internal/config"
	"defaulter/internal/daemon"
	"defaulter/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the defaulter daemon and blocks until a signal arrives or a run
// aborts. An aborted run is returned so the process exits non-zero.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	started := time.Now()
	logger, logPath, err := logging.NewFromConfig(cfg, started)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if logPath != "" {
		if err := logging.PointCurrentLog(cfg.Logging.Dir, logPath); err != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.CurrentLogName, err)
		}
		logging.PruneOlderThan(logger, cfg.Logging.RetentionDays, started,
			logging.RetentionTarget{Dir: cfg.Logging.Dir, Pattern: logging.LogFilePattern, Exclude: []string{logPath}},
		)
	}

	pidPath := filepath.Join(cfg.Audit.Dir, "defaulter.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	session, err := OpenSession(cfg, logger)
	if err != nil {
		logger.Error("open session", logging.Error(err))
		return err
	}
	defer session.Close()

	d, err := daemon.New(cfg, session.Manager, logger, daemon.Options{
		Runs:    session.Store,
		Metrics: session.Metrics.Handler(),
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Stop()

	logger.Info("defaulter daemon listening",
		logging.String(logging.FieldEventType, "daemon_listening"),
		logging.String("api_address", d.Status().APIAddress),
		logging.String("rules_path", cfg.RulesPath),
	)

	select {
	case <-signalCtx.Done():
		logger.Info("defaulter daemon shutting down")
		return nil
	case fatal, ok := <-d.Done():
		if !ok || fatal == nil {
			return nil
		}
		logger.Info("defaulter daemon shutting down after aborted run")
		return fatal
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
