package scraper

import (
	"fmt"
)

// ErrTransport indicates the request never produced a response: connection
// failure, DNS failure or timeout.
type ErrTransport struct {
	URL string
	Err error
}

func (e ErrTransport) Error() string {
	return fmt.Errorf("transport %s: %w", e.URL, e.Err).Error()
}

func (e ErrTransport) Unwrap() error {
	return e.Err
}

// ErrHTTPStatus indicates the target answered with a failure status.
type ErrHTTPStatus struct {
	URL        string
	StatusCode int
}

func (e ErrHTTPStatus) Error() string {
	return fmt.Sprintf("http status %d from %s", e.StatusCode, e.URL)
}

// ErrParse indicates the response body could not be read as markup.
type ErrParse struct {
	Err error
}

func (e ErrParse) Error() string {
	return fmt.Errorf("parse: %w", e.Err).Error()
}

func (e ErrParse) Unwrap() error {
	return e.Err
}
