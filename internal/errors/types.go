package errors

import (
	"errors"
	"fmt"
)

// NormalizationError names the field that could not be extracted from
// a raw product-name string, or the non-4070 chipset that caused a
// rejection.
type NormalizationError struct {
	Code  string // one of the Normalize* codes
	Field string
	Input string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("%s: %s (input=%q)", e.Code, e.Field, e.Input)
}

// ValidationError rejects a record at a component boundary (e.g. a
// non-positive price) before any I/O is attempted.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
}

// StoreConstraintError wraps a foreign-key or check-constraint
// violation surfaced by the store after retry, carrying the natural
// key that failed so operators can find the offending record.
type StoreConstraintError struct {
	NaturalKey string
	Cause      error
}

func (e *StoreConstraintError) Error() string {
	return fmt.Sprintf("%s: natural key %s: %v", StoreConstraintViolation, e.NaturalKey, e.Cause)
}

func (e *StoreConstraintError) Unwrap() error { return e.Cause }

// StoreUnavailableError is fatal to the current pipeline run: the
// connection pool is exhausted or the store could not be reached
// after every retry attempt.
type StoreUnavailableError struct {
	Cause error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", StoreUnavailable, e.Cause)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Cause }

// RateLimitError signals an HTTP 429 that survived the Retryer's
// single bounded-wait retry; FeedExtractor's Extract logs it and skips
// that subreddit for the run without aborting the others.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %ds", TransientRateLimited, e.RetryAfterSeconds)
}

// ErrInsufficientData labels the "not enough price history" case. It is
// never returned: internal/analyze/price and internal/analyze/risk
// return (nil, nil) and log a warning, and internal/pipeline uses this
// sentinel's text as the reason field of its skip warnings.
var ErrInsufficientData = errors.New("insufficient historical data")

// ErrPipelineAlreadyRunning is returned when a second pipeline
// invocation is attempted while one is already in flight.
var ErrPipelineAlreadyRunning = errors.New("pipeline run already in progress")
