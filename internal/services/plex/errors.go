package plex

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAuthorizationMissing matches any 401 answer.
var ErrAuthorizationMissing = errors.New("plex authorization missing or rejected")

// StatusError reports a non-2xx answer from Plex.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("plex %s %s returned %d", e.Method, e.Path, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// HTTPStatus exposes the status code to callers that only know the
// update.StatusCoder interface.
func (e *StatusError) HTTPStatus() int {
	return e.Status
}

// Is lets errors.Is(err, ErrAuthorizationMissing) match 401 answers.
func (e *StatusError) Is(target error) bool {
	return target == ErrAuthorizationMissing && e.Status == http.StatusUnauthorized
}
