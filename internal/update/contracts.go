package update

import (
	"context"

	"defaulter/internal/selection"
)

// TokenStore resolves a viewer's own credential.
type TokenStore interface {
	Lookup(viewer string) (string, bool)
}

// Response is what the media server answered to a successful round trip.
type Response struct {
	StatusCode int
}

// MediaClient applies one plan for one viewer. Errors may implement
// StatusCoder when the server answered with an error status.
type MediaClient interface {
	SetDefaultStreams(ctx context.Context, viewer, token string, plan selection.Plan) (Response, error)
}

// StatusCoder exposes the HTTP status carried by an error.
type StatusCoder interface {
	HTTPStatus() int
}

// AuditSink durably records outcomes.
type AuditSink interface {
	Append(Record) error
}

// SummaryReporter renders per-part summaries.
type SummaryReporter interface {
	Report(Summary)
}

// Summary collects the viewer results of one plan within one group.
type Summary struct {
	Library   string
	Group     string
	PartID    int64
	RatingKey string
	Title     string
	Viewers   []ViewerSummary
}

// ViewerSummary is one viewer's line in a Summary.
type ViewerSummary struct {
	Name       string
	Status     Status
	Reason     string
	HTTPStatus int
	Audio      *selection.Selection
	Subtitles  *selection.Selection
}

func viewerSummary(o Outcome) ViewerSummary {
	return ViewerSummary{
		Name:       o.Viewer,
		Status:     o.Status,
		Reason:     o.Reason,
		HTTPStatus: o.HTTPStatus,
		Audio:      o.Plan.Audio,
		Subtitles:  o.Plan.Subtitles,
	}
}
