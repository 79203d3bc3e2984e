package upstream

import (
	"fmt"
	"time"
)

// ThrottleError carries the upstream's Retry-After hint so the retry layer
// can honor it instead of guessing a backoff.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// StatusError preserves the upstream HTTP status for error classification
// (4xx vs 5xx vs 429) in the usage recorder.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Code, e.Body)
}
