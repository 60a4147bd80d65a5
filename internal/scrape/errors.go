package scrape

import (
	"errors"
	"fmt"
)

// ErrJobNotFound is returned by job stores when no job matches the ID.
// Both the memory and Postgres backends surface this same sentinel so
// callers can map it uniformly.
var ErrJobNotFound = errors.New("job not found")

// FetchErrorKind classifies fetch failures for retry and reporting decisions.
type FetchErrorKind string

// Fetch error kinds.
const (
	FetchErrInvalid FetchErrorKind = "invalid"
	FetchErrTimeout FetchErrorKind = "timeout"
	FetchErrNetwork FetchErrorKind = "network"
	FetchErrStatus  FetchErrorKind = "status"
)

// FetchError wraps a fetch failure with its classification.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s: http %d", e.URL, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a retry could plausibly succeed.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case FetchErrTimeout, FetchErrNetwork:
		return true
	case FetchErrStatus:
		// 408 and 429 are explicitly retry-after conditions; 5xx is transient.
		return e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
	default:
		return false
	}
}

// FetchErrorKindOf extracts the kind from an error chain, or "" if the error
// did not originate from a fetcher.
func FetchErrorKindOf(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
