package selection

import (
	"fmt"
	"log/slog"

	"defaulter/internal/logging"
	"defaulter/internal/rules"
	"defaulter/internal/services"
)

// DisabledLabel describes the "no subtitles" selection.
const DisabledLabel = "Disabled"

// Selection is one chosen (or previously active) track.
type Selection struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// Plan is the selection a viewer group should receive for one part.
type Plan struct {
	PartID    int64
	RatingKey string
	Title     string
	// Audio and Subtitles are the new defaults; a nil value leaves that kind
	// unchanged. A subtitle ID of 0 disables subtitles.
	Audio     *Selection
	Subtitles *Selection
	// FromAudio and FromSubtitles are the tracks that were selected when the
	// part was fetched.
	FromAudio     *Selection
	FromSubtitles *Selection
}

// Resolver turns a part and a group's rules into a plan.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver constructs a resolver that reports diagnostics to logger.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logging.NewComponentLogger(logger, "selection")}
}

// Resolve returns nil when there is nothing to choose between or no rule
// produced a selection. An error means the rules are malformed for this part.
func (r *Resolver) Resolve(part Part, filter rules.Filter) (*Plan, error) {
	audioTracks := part.TracksOf(KindAudio)
	subtitleTracks := part.TracksOf(KindSubtitle)
	if len(audioTracks)+len(subtitleTracks) < 2 {
		r.logger.Info("part has fewer than two streams; skipping",
			logging.Int64("part_id", part.PartID),
			logging.String("title", part.Title),
			logging.String(logging.FieldDecisionType, "part_skip"),
		)
		return nil, nil
	}

	plan := &Plan{PartID: part.PartID, RatingKey: part.RatingKey, Title: part.Title}
	if track, ok := part.SelectedOf(KindAudio); ok {
		plan.FromAudio = &Selection{ID: track.ID, Label: fromLabel(track)}
	}
	if track, ok := part.SelectedOf(KindSubtitle); ok {
		plan.FromSubtitles = &Selection{ID: track.ID, Label: fromLabel(track)}
	}

	audio, hasAudio := SelectChoice(audioTracks, filter.Audio)
	subtitles, hasSubtitles := SelectChoice(subtitleTracks, filter.Subtitles)

	// One override hop per kind. A recomputed match never triggers another
	// override; rules that would need one are rejected.
	if hasAudio && audio.OnMatch != nil && audio.OnMatch.Subtitles != nil {
		subtitles, hasSubtitles = SelectChoice(subtitleTracks, audio.OnMatch.Subtitles)
		if hasSubtitles && subtitles.OnMatch != nil {
			return nil, nestedOverride(part, "subtitles")
		}
	}
	if hasSubtitles && subtitles.OnMatch != nil && subtitles.OnMatch.Audio != nil {
		audio, hasAudio = SelectChoice(audioTracks, subtitles.OnMatch.Audio)
		if hasAudio && audio.OnMatch != nil {
			return nil, nestedOverride(part, "audio")
		}
	}

	if hasAudio && !audio.Disabled && audio.Track.ID != 0 {
		plan.Audio = &Selection{ID: audio.Track.ID, Label: toLabel(audio.Track)}
	}
	if hasSubtitles {
		if subtitles.Disabled {
			plan.Subtitles = &Selection{ID: 0, Label: DisabledLabel}
		} else {
			plan.Subtitles = &Selection{ID: subtitles.Track.ID, Label: toLabel(subtitles.Track)}
		}
	}

	if plan.Audio == nil && plan.Subtitles == nil {
		r.logger.Debug("no rule matched part",
			logging.Int64("part_id", part.PartID),
			logging.String("title", part.Title),
		)
		return nil, nil
	}
	return plan, nil
}

func nestedOverride(part Part, kind string) error {
	return services.Wrap(services.ErrConfiguration, "selection", "resolve",
		fmt.Sprintf("part %d: %s override matched a rule that carries its own on_match", part.PartID, kind), nil)
}

func toLabel(track Track) string {
	return firstNonEmpty(track.ExtendedDisplayTitle, track.DisplayTitle, track.Language, track.Codec)
}

func fromLabel(track Track) string {
	return firstNonEmpty(track.ExtendedDisplayTitle, track.DisplayTitle, track.Language, "unknown")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
