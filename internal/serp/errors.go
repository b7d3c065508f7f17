package serp

import (
	"errors"
	"fmt"
)

// ErrNoContent is returned when every extraction strategy came back empty.
var ErrNoContent = errors.New("no content extracted")

// ValidationError rejects a request before any network call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// UpstreamError reports a failed call to the search API.
type UpstreamError struct {
	Message    string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream search error: %d - %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream search error: %s", e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *UpstreamError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode >= 200 && e.StatusCode < 300:
		// 2xx with an unreadable body
		return true
	default:
		return false
	}
}

// FetchError reports a page that could not be retrieved.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode > 0:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
