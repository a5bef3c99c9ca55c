package feed

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedEntry marks a feed item that cannot become an Entry.
var ErrMalformedEntry = errors.New("malformed entry")

// FetchError is returned when one source cannot be fetched or parsed.
// It never aborts a run.
type FetchError struct {
	Source string
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch feed %s (URL = %s): %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

func (e *StatusError) retryable() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

type parseError struct {
	err error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("parse feed: %v", e.err)
}

func (e *parseError) Unwrap() error {
	return e.err
}
