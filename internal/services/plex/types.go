package plex

import (
	"encoding/xml"
	"strconv"
	"strings"

	"defaulter/internal/selection"
)

// Plex stream types.
const (
	streamTypeVideo    = 1
	streamTypeAudio    = 2
	streamTypeSubtitle = 3
)

// Library is a movie or show section.
type Library struct {
	Key   string
	Type  string
	Title string
}

// Item is a library entry: a movie, show, season, or episode.
type Item struct {
	RatingKey        string
	Type             string
	Title            string
	ParentTitle      string
	GrandparentTitle string
	Index            int
	UpdatedAt        int64
}

// SharedUser is a plex.tv share of the configured server.
type SharedUser struct {
	Username    string
	AccessToken string
}

type mediaContainer struct {
	XMLName     xml.Name       `xml:"MediaContainer"`
	Title1      string         `xml:"title1,attr"`
	Title2      string         `xml:"title2,attr"`
	Directories []xmlMetadata  `xml:"Directory"`
	Videos      []xmlMetadata  `xml:"Video"`
	Shared      []sharedServer `xml:"SharedServer"`
}

type xmlMetadata struct {
	Key              string     `xml:"key,attr"`
	RatingKey        string     `xml:"ratingKey,attr"`
	Type             string     `xml:"type,attr"`
	Title            string     `xml:"title,attr"`
	ParentTitle      string     `xml:"parentTitle,attr"`
	GrandparentTitle string     `xml:"grandparentTitle,attr"`
	Index            int        `xml:"index,attr"`
	UpdatedAt        int64      `xml:"updatedAt,attr"`
	Media            []xmlMedia `xml:"Media"`
}

type xmlMedia struct {
	Parts []xmlPart `xml:"Part"`
}

type xmlPart struct {
	ID      int64       `xml:"id,attr"`
	Streams []xmlStream `xml:"Stream"`
}

type xmlStream struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

type sharedServer struct {
	Username    string `xml:"username,attr"`
	AccessToken string `xml:"accessToken,attr"`
}

func (m xmlMetadata) item() Item {
	return Item{
		RatingKey:        m.RatingKey,
		Type:             m.Type,
		Title:            m.Title,
		ParentTitle:      m.ParentTitle,
		GrandparentTitle: m.GrandparentTitle,
		Index:            m.Index,
		UpdatedAt:        m.UpdatedAt,
	}
}

// displayTitle renders "Show - Season 1 - Episode 3 - Title" for episodes
// and the plain title otherwise.
func (m xmlMetadata) displayTitle() string {
	title := m.Title
	if m.Type == "episode" {
		title = "Episode " + strconv.Itoa(m.Index) + " - " + title
	}
	if m.ParentTitle != "" {
		title = m.ParentTitle + " - " + title
	}
	if m.GrandparentTitle != "" {
		title = m.GrandparentTitle + " - " + title
	}
	return title
}

func (s xmlStream) track() (selection.Track, bool) {
	attrs := make(map[string]string, len(s.Attrs))
	for _, attr := range s.Attrs {
		attrs[attr.Name.Local] = attr.Value
	}
	streamType, _ := strconv.Atoi(attrs["streamType"])
	var kind selection.Kind
	switch streamType {
	case streamTypeAudio:
		kind = selection.KindAudio
	case streamTypeSubtitle:
		kind = selection.KindSubtitle
	default:
		return selection.Track{}, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(attrs["id"]), 10, 64)
	if err != nil {
		return selection.Track{}, false
	}
	// Language stays as reported; rules match languageCode separately.
	return selection.Track{
		ID:                   id,
		Kind:                 kind,
		DisplayTitle:         attrs["displayTitle"],
		ExtendedDisplayTitle: attrs["extendedDisplayTitle"],
		Language:             attrs["language"],
		Codec:                attrs["codec"],
		Selected:             attrs["selected"] == "1",
		Attributes:           attrs,
	}, true
}
