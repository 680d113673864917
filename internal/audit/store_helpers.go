package audit

import (
	"database/sql"
	"fmt"
	"time"

	"defaulter/internal/update"
)

const runColumns = "id, mode, dry_run, started_at, finished_at, result, processed, succeeded, failed, skipped, error_message"

const outcomeColumns = "run_id, timestamp, library, rating_key, part_id, title, group_name, viewer, action_type, from_stream_id, from_label, to_stream_id, to_label, status, reason, http_status, duration_ms"

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run         Run
		dryRun      int
		startedRaw  string
		finishedRaw sql.NullString
		message     sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Mode, &dryRun, &startedRaw, &finishedRaw, &run.Result,
		&run.Processed, &run.Succeeded, &run.Failed, &run.Skipped, &message); err != nil {
		return nil, err
	}
	run.DryRun = dryRun != 0
	run.StartedAt = parseTime(startedRaw)
	if finishedRaw.Valid {
		finished := parseTime(finishedRaw.String)
		run.FinishedAt = &finished
	}
	run.Error = message.String
	return &run, nil
}

func scanOutcome(row scanner) (update.Record, error) {
	var (
		rec        update.Record
		runID      sql.NullString
		stamp      string
		ratingKey  sql.NullString
		title      sql.NullString
		fromID     sql.NullString
		fromLabel  sql.NullString
		toID       sql.NullString
		toLabel    sql.NullString
		status     string
		reason     sql.NullString
		httpStatus sql.NullInt64
	)
	if err := row.Scan(&runID, &stamp, &rec.Library, &ratingKey, &rec.PartID, &title, &rec.Group, &rec.Viewer,
		&rec.ActionType, &fromID, &fromLabel, &toID, &toLabel, &status, &reason, &httpStatus, &rec.DurationMs); err != nil {
		return update.Record{}, fmt.Errorf("scan outcome: %w", err)
	}
	rec.RunID = runID.String
	rec.Timestamp = parseTime(stamp)
	rec.RatingKey = ratingKey.String
	rec.Title = title.String
	rec.FromStreamID = fromID.String
	rec.FromLabel = fromLabel.String
	rec.ToStreamID = toID.String
	rec.ToLabel = toLabel.String
	rec.Status = update.Status(status)
	rec.Reason = reason.String
	if httpStatus.Valid {
		code := int(httpStatus.Int64)
		rec.HTTPStatus = &code
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
