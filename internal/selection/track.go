package selection

import "strconv"

// Kind distinguishes audio from subtitle tracks.
type Kind string

const (
	KindAudio    Kind = "audio"
	KindSubtitle Kind = "subtitle"
)

// Track is an immutable snapshot of one stream of a media part.
type Track struct {
	ID                   int64
	Kind                 Kind
	DisplayTitle         string
	ExtendedDisplayTitle string
	Language             string
	Codec                string
	Selected             bool
	// Attributes carries every other stream attribute reported by the
	// server (title, languageCode, forced, ...) so rules can name them.
	Attributes map[string]string
}

// Field returns the stringified value of a stream field. Empty values are
// reported as missing.
func (t Track) Field(name string) (string, bool) {
	var value string
	switch name {
	case "id":
		value = strconv.FormatInt(t.ID, 10)
	case "displayTitle":
		value = t.DisplayTitle
	case "extendedDisplayTitle":
		value = t.ExtendedDisplayTitle
	case "language":
		value = t.Language
	case "codec":
		value = t.Codec
	case "selected":
		if t.Selected {
			value = "1"
		}
	default:
		value = t.Attributes[name]
	}
	return value, value != ""
}

// Part is the playable file backing one movie or episode.
type Part struct {
	PartID    int64
	RatingKey string
	Title     string
	Tracks    []Track
}

// TracksOf returns the part's tracks of one kind in their original order.
func (p Part) TracksOf(kind Kind) []Track {
	var out []Track
	for _, track := range p.Tracks {
		if track.Kind == kind {
			out = append(out, track)
		}
	}
	return out
}

// SelectedOf returns the track of the given kind currently marked selected.
func (p Part) SelectedOf(kind Kind) (Track, bool) {
	for _, track := range p.Tracks {
		if track.Kind == kind && track.Selected {
			return track, true
		}
	}
	return Track{}, false
}
