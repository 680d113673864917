package update

import (
	"strconv"
	"strings"
	"time"

	"defaulter/internal/selection"
)

// Status is the terminal state of one viewer step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
	StatusDryRun  Status = "dry_run"
)

// ReasonNoToken marks viewers skipped because no credential is known.
const ReasonNoToken = "no_token"

// Action types recorded in the audit trail.
const (
	ActionAudio          = "audio"
	ActionSubtitles      = "subtitles"
	ActionAudioSubtitles = "audio+subtitles"
	ActionNone           = "none"
)

// Outcome is the result of applying one plan for one viewer of one group.
type Outcome struct {
	Library string
	Group   string
	Viewer  string
	Plan    selection.Plan
	Status  Status
	Reason  string
	// HTTPStatus is 0 when no response status is known.
	HTTPStatus int
	StartedAt  time.Time
	Duration   time.Duration
}

// Record is the flattened audit row for one outcome. JSON keys match the
// CSV header written by the file sink.
type Record struct {
	RunID        string    `json:"runId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Library      string    `json:"libraryName"`
	RatingKey    string    `json:"ratingKey"`
	PartID       int64     `json:"partId"`
	Title        string    `json:"title"`
	Group        string    `json:"group"`
	Viewer       string    `json:"user"`
	ActionType   string    `json:"actionType"`
	FromStreamID string    `json:"fromStreamId"`
	FromLabel    string    `json:"fromLabel"`
	ToStreamID   string    `json:"toStreamId"`
	ToLabel      string    `json:"toLabel"`
	Status       Status    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	HTTPStatus   *int      `json:"httpStatus"`
	DurationMs   int64     `json:"durationMs"`
}

// Record flattens the outcome for audit sinks.
func (o Outcome) Record(runID string) Record {
	transition := TransitionOf(o.Plan)
	rec := Record{
		RunID:        runID,
		Timestamp:    o.StartedAt.UTC(),
		Library:      o.Library,
		RatingKey:    o.Plan.RatingKey,
		PartID:       o.Plan.PartID,
		Title:        o.Plan.Title,
		Group:        o.Group,
		Viewer:       o.Viewer,
		ActionType:   ActionType(o.Plan),
		FromStreamID: transition.FromStreamID,
		FromLabel:    transition.FromLabel,
		ToStreamID:   transition.ToStreamID,
		ToLabel:      transition.ToLabel,
		Status:       o.Status,
		Reason:       o.Reason,
		DurationMs:   o.Duration.Milliseconds(),
	}
	if o.HTTPStatus != 0 {
		status := o.HTTPStatus
		rec.HTTPStatus = &status
	}
	return rec
}

// ActionType names which track kinds a plan changes.
func ActionType(plan selection.Plan) string {
	switch {
	case plan.Audio != nil && plan.Subtitles != nil:
		return ActionAudioSubtitles
	case plan.Audio != nil:
		return ActionAudio
	case plan.Subtitles != nil:
		return ActionSubtitles
	default:
		return ActionNone
	}
}

// Transition is the before/after view of a plan. When both kinds change,
// ids are joined with "|" and labels with " | ", audio first.
type Transition struct {
	FromStreamID string
	FromLabel    string
	ToStreamID   string
	ToLabel      string
}

// TransitionOf builds the transition for a plan. A kind with no previous
// selection contributes an empty "from" element.
func TransitionOf(plan selection.Plan) Transition {
	var fromIDs, fromLabels, toIDs, toLabels []string
	add := func(to, from *selection.Selection) {
		if to == nil {
			return
		}
		if from != nil {
			fromIDs = append(fromIDs, strconv.FormatInt(from.ID, 10))
			fromLabels = append(fromLabels, from.Label)
		} else {
			fromIDs = append(fromIDs, "")
			fromLabels = append(fromLabels, "")
		}
		toIDs = append(toIDs, strconv.FormatInt(to.ID, 10))
		toLabels = append(toLabels, to.Label)
	}
	add(plan.Audio, plan.FromAudio)
	add(plan.Subtitles, plan.FromSubtitles)
	return Transition{
		FromStreamID: strings.Join(fromIDs, "|"),
		FromLabel:    strings.Join(fromLabels, " | "),
		ToStreamID:   strings.Join(toIDs, "|"),
		ToLabel:      strings.Join(toLabels, " | "),
	}
}
