package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// NetworkError is a transport failure: DNS, connection reset, timeout.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a response outside the 2xx range.
type HTTPError struct {
	URL    string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// ExtractionError is returned when a required field cannot be determined at all.
type ExtractionError struct {
	Field string
	URL   string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s from %s: no usable content", e.Field, e.URL)
}

// isTransient decides whether a failed fetch is worth another attempt.
// Cancellation of the caller's context is never transient.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status == http.StatusTooManyRequests || httpErr.Status >= 500
	}
	return false
}
