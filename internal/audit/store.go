package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"defaulter/internal/config"
	"defaulter/internal/services"
	"defaulter/internal/update"
)

// Run results stored in the runs table.
const (
	ResultRunning   = "running"
	ResultCompleted = "completed"
	ResultAborted   = "aborted"
	ResultFailed    = "failed"
)

// Run is one row of the runs table.
type Run struct {
	ID         string     `json:"id"`
	Mode       string     `json:"mode"`
	DryRun     bool       `json:"dryRun"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Result     string     `json:"result"`
	Processed  int        `json:"processed"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Error      string     `json:"error,omitempty"`
}

// OutcomeQuery narrows ListOutcomes. Zero fields match everything; Limit 0
// means 100.
type OutcomeQuery struct {
	RunID  string
	Viewer string
	Status update.Status
	Limit  int
}

// Store persists runs and outcomes in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the audit database and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "audit", "open", "database path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure audit directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenFromConfig opens the database at audit.database_path.
func OpenFromConfig(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return Open(cfg.Audit.DatabasePath)
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun inserts a run in the running state.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	result := run.Result
	if result == "" {
		result = ResultRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, dry_run, started_at, result) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Mode, boolToInt(run.DryRun), formatTime(run.StartedAt), result,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stores the final counters and result of a run.
func (s *Store) FinishRun(ctx context.Context, id string, finishedAt time.Time, result string, stats update.StatsSnapshot, runErr error) error {
	var message any
	if runErr != nil {
		message = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, result = ?, processed = ?, succeeded = ?, failed = ?, skipped = ?, error_message = ?
         WHERE id = ?`,
		formatTime(finishedAt), result, stats.Processed, stats.Succeeded, stats.Failed, stats.Skipped, message, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrNotFound, "audit", "finish run", "run "+id+" not found", nil)
	}
	return nil
}

// Append implements update.AuditSink.
func (s *Store) Append(rec update.Record) error {
	var httpStatus any
	if rec.HTTPStatus != nil {
		httpStatus = *rec.HTTPStatus
	}
	_, err := s.db.Exec(
		`INSERT INTO outcomes (
            run_id, timestamp, library, rating_key, part_id, title, group_name, viewer, action_type,
            from_stream_id, from_label, to_stream_id, to_label, status, reason, http_status, duration_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableString(rec.RunID), formatTime(rec.Timestamp), rec.Library, rec.RatingKey, rec.PartID, rec.Title,
		rec.Group, rec.Viewer, rec.ActionType, rec.FromStreamID, rec.FromLabel, rec.ToStreamID, rec.ToLabel,
		string(rec.Status), nullableString(rec.Reason), httpStatus, rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// GetRun fetches one run.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "audit", "get run", "run "+id+" not found", nil)
	}
	return run, err
}

// ListRuns returns the newest runs first. A limit of 0 means 20.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListOutcomes returns matching outcomes in insertion order.
func (s *Store) ListOutcomes(ctx context.Context, q OutcomeQuery) ([]update.Record, error) {
	var (
		clauses []string
		args    []any
	)
	if q.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, q.RunID)
	}
	if q.Viewer != "" {
		clauses = append(clauses, "viewer = ?")
		args = append(args, q.Viewer)
	}
	if q.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(q.Status))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT " + outcomeColumns + " FROM outcomes"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()
	var records []update.Record
	for rows.Next() {
		rec, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PruneBefore deletes runs started before cutoff and their outcomes.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	stamp := formatTime(cutoff)
	if _, err := tx.ExecContext(ctx, "DELETE FROM outcomes WHERE timestamp < ?", stamp); err != nil {
		return 0, fmt.Errorf("prune outcomes: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ? AND result != ?", stamp, ResultRunning)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return res.RowsAffected()
}
