package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookups that matched no event. It is distinct
// from a store failure.
var ErrNotFound = errors.New("event not found")

// ErrStoreUnavailable is returned when the store is not configured or not
// reachable for the whole operation.
var ErrStoreUnavailable = errors.New("event store unavailable")

// ErrMissingSourceID is returned by normalization when a raw message carries
// no source identifier. Such messages never reach the writer.
var ErrMissingSourceID = errors.New("raw message has no source id")

// RetryableError signals a transient extractor failure (rate limiting,
// momentary unavailability). Wait carries the collaborator's suggested delay
// when it gave one; zero means the caller should use its own backoff.
type RetryableError struct {
	Err  error
	Wait time.Duration
}

func (e *RetryableError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("retryable: %v (retry after %s)", e.Err, e.Wait)
	}
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }
