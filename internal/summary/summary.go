package summary

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"defaulter/internal/config"
	"defaulter/internal/logging"
	"defaulter/internal/selection"
	"defaulter/internal/update"
)

// EventUserUpdates tags every summary line.
const EventUserUpdates = "user_updates"

// Payload is the JSON form of a summary.
type Payload struct {
	Event     string        `json:"event"`
	Library   string        `json:"library"`
	Group     string        `json:"group"`
	PartID    int64         `json:"partId"`
	RatingKey string        `json:"ratingKey"`
	Title     string        `json:"title"`
	Users     []UserPayload `json:"users"`
}

// UserPayload is one viewer inside a Payload.
type UserPayload struct {
	Name       string               `json:"name"`
	Status     update.Status        `json:"status"`
	Audio      *selection.Selection `json:"audio,omitempty"`
	Subtitles  *selection.Selection `json:"subtitles,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	HTTPStatus int                  `json:"httpStatus,omitempty"`
}

// NewPayload converts a summary to its JSON form.
func NewPayload(s update.Summary) Payload {
	p := Payload{
		Event:     EventUserUpdates,
		Library:   s.Library,
		Group:     s.Group,
		PartID:    s.PartID,
		RatingKey: s.RatingKey,
		Title:     s.Title,
		Users:     make([]UserPayload, 0, len(s.Viewers)),
	}
	for _, v := range s.Viewers {
		p.Users = append(p.Users, UserPayload{
			Name:       v.Name,
			Status:     v.Status,
			Audio:      v.Audio,
			Subtitles:  v.Subtitles,
			Reason:     v.Reason,
			HTTPStatus: v.HTTPStatus,
		})
	}
	return p
}

// JSONReporter logs each summary as a single JSON document.
type JSONReporter struct {
	logger *slog.Logger
}

// NewJSONReporter returns a reporter logging through logger.
func NewJSONReporter(logger *slog.Logger) *JSONReporter {
	return &JSONReporter{logger: logging.NewComponentLogger(logger, "summary")}
}

// Report implements update.SummaryReporter.
func (r *JSONReporter) Report(s update.Summary) {
	data, err := json.Marshal(NewPayload(s))
	if err != nil {
		r.logger.Error("marshal user summary", logging.Error(err))
		return
	}
	r.logger.Info(string(data), logging.String(logging.FieldEventType, EventUserUpdates))
}

// HumanReporter logs each summary as one readable sentence.
type HumanReporter struct {
	logger *slog.Logger
}

// NewHumanReporter returns a reporter logging through logger.
func NewHumanReporter(logger *slog.Logger) *HumanReporter {
	return &HumanReporter{logger: logging.NewComponentLogger(logger, "summary")}
}

// Report implements update.SummaryReporter.
func (r *HumanReporter) Report(s update.Summary) {
	r.logger.Info(FormatHuman(s), logging.String(logging.FieldEventType, EventUserUpdates))
}

// FormatHuman renders
// "User summary (library='L', group='G', part=N, title='T'): alice: audio='English' (id=1) [success], ...".
func FormatHuman(s update.Summary) string {
	header := fmt.Sprintf("User summary (library='%s', group='%s', part=%d, title='%s'):", s.Library, s.Group, s.PartID, s.Title)
	segments := make([]string, 0, len(s.Viewers))
	for _, v := range s.Viewers {
		var details []string
		if v.Audio != nil {
			details = append(details, fmt.Sprintf("audio='%s' (id=%d)", v.Audio.Label, v.Audio.ID))
		}
		if v.Subtitles != nil {
			if v.Subtitles.ID == 0 {
				details = append(details, "subtitles=disabled")
			} else {
				details = append(details, fmt.Sprintf("subtitles='%s' (id=%d)", v.Subtitles.Label, v.Subtitles.ID))
			}
		}
		suffix := "[" + string(v.Status) + "]"
		if v.Reason != "" && v.Status != update.StatusSuccess {
			suffix = "[" + string(v.Status) + ": " + v.Reason + "]"
		}
		prefix := ""
		if len(details) > 0 {
			prefix = strings.Join(details, ", ") + " "
		}
		segments = append(segments, strings.TrimSpace(v.Name+": "+prefix+suffix))
	}
	return header + " " + strings.Join(segments, ", ")
}

// Multi reports to every reporter in order.
type Multi []update.SummaryReporter

// Report implements update.SummaryReporter.
func (m Multi) Report(s update.Summary) {
	for _, r := range m {
		if r != nil {
			r.Report(s)
		}
	}
}

// FromConfig builds the reporters enabled in [summary]. It returns nil when
// both are off.
func FromConfig(cfg config.Summary, logger *slog.Logger) update.SummaryReporter {
	var reporters Multi
	if cfg.JSON {
		reporters = append(reporters, NewJSONReporter(logger))
	}
	if cfg.Human {
		reporters = append(reporters, NewHumanReporter(logger))
	}
	switch len(reporters) {
	case 0:
		return nil
	case 1:
		return reporters[0]
	default:
		return reporters
	}
}
