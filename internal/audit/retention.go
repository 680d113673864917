package audit

import (
	"log/slog"
	"time"

	"defaulter/internal/logging"
)

// PruneRunFiles removes run files older than retentionDays from dir. The
// current run's files are passed in keep so they survive a zero-age cutoff.
func PruneRunFiles(logger *slog.Logger, dir string, retentionDays int, now time.Time, keep ...string) int {
	return logging.PruneOlderThan(logger, retentionDays, now,
		logging.RetentionTarget{Dir: dir, Pattern: RunFilePrefix + "*.json", Exclude: keep},
		logging.RetentionTarget{Dir: dir, Pattern: RunFilePrefix + "*.csv", Exclude: keep},
	)
}
