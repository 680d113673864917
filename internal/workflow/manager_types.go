package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"defaulter/internal/audit"
	"defaulter/internal/selection"
	"defaulter/internal/services/plex"
	"defaulter/internal/update"
)

// Mode selects which items a run visits.
type Mode string

const (
	// ModeClean visits every item of every configured library.
	ModeClean Mode = "clean"
	// ModePartial visits items updated since the previous run.
	ModePartial Mode = "partial"
	// ModeEvent is a single-item run triggered by the webhook.
	ModeEvent Mode = "webhook"
)

// ParseMode accepts "clean" or "partial".
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeClean:
		return ModeClean, nil
	case ModePartial:
		return ModePartial, nil
	default:
		return "", fmt.Errorf("unknown run mode %q (want clean or partial)", value)
	}
}

// MediaSource is the slice of the Plex client a session needs.
type MediaSource interface {
	update.MediaClient
	Libraries(ctx context.Context) ([]plex.Library, error)
	Items(ctx context.Context, sectionKey string, since int64) ([]plex.Item, error)
	Children(ctx context.Context, ratingKey string) ([]plex.Item, error)
	Part(ctx context.Context, ratingKey string) (selection.Part, error)
	SharedUsers(ctx context.Context) ([]plex.SharedUser, error)
	CheckAccess(ctx context.Context, token, sectionKey string) error
}

// RunStore persists run rows alongside outcomes.
type RunStore interface {
	update.AuditSink
	BeginRun(ctx context.Context, run audit.Run) error
	FinishRun(ctx context.Context, id string, finishedAt time.Time, result string, stats update.StatsSnapshot, runErr error) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunObserver counts outcomes and finished runs.
type RunObserver interface {
	update.AuditSink
	ObserveRun(mode, result string, finishedAt time.Time)
}

// RunOptions selects the mode of a run. DryRun is OR-ed with the configured
// flag.
type RunOptions struct {
	Mode   Mode
	DryRun bool
}

// RunReport describes a finished run.
type RunReport struct {
	ID         string               `json:"id"`
	Mode       Mode                 `json:"mode"`
	DryRun     bool                 `json:"dryRun"`
	StartedAt  time.Time            `json:"startedAt"`
	FinishedAt time.Time            `json:"finishedAt"`
	Result     string               `json:"result"`
	Stats      update.StatsSnapshot `json:"stats"`
	Error      string               `json:"error,omitempty"`
	AuditFiles []string             `json:"auditFiles,omitempty"`
}

// Event is the Tautulli webhook body. Ids arrive as strings or numbers
// depending on how the notification agent template was written.
type Event struct {
	Type      string `json:"type"`
	LibraryID string `json:"libraryId"`
	MediaID   string `json:"mediaId"`
}

// UnmarshalJSON accepts string or numeric ids.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      string          `json:"type"`
		LibraryID json.RawMessage `json:"libraryId"`
		MediaID   json.RawMessage `json:"mediaId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	libraryID, err := flexibleID(raw.LibraryID)
	if err != nil {
		return fmt.Errorf("libraryId: %w", err)
	}
	mediaID, err := flexibleID(raw.MediaID)
	if err != nil {
		return fmt.Errorf("mediaId: %w", err)
	}
	*e = Event{Type: strings.ToLower(strings.TrimSpace(raw.Type)), LibraryID: libraryID, MediaID: mediaID}
	return nil
}

func flexibleID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", raw)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return "", fmt.Errorf("expected integer id, got %s", n)
	}
	return n.String(), nil
}

// Event types understood by HandleEvent.
const (
	EventMovie   = "movie"
	EventEpisode = "episode"
	EventShow    = "show"
	EventSeason  = "season"
)

// EventResult tells the webhook caller what happened.
type EventResult struct {
	Relevant bool       `json:"relevant"`
	Message  string     `json:"message"`
	Report   *RunReport `json:"report,omitempty"`
}

// Status is a point-in-time view of the session.
type Status struct {
	Prepared  bool                 `json:"prepared"`
	Running   bool                 `json:"running"`
	Viewers   int                  `json:"viewers"`
	Libraries []string             `json:"libraries"`
	Current   update.StatsSnapshot `json:"current"`
	LastRun   *RunReport           `json:"lastRun,omitempty"`
}
