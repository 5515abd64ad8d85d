package domain

import (
	"errors"
	"fmt"
)

// ErrNoProviderAvailable is returned by the provider router when every
// profile for a capability is cooling down or over its rate limit. The
// coordinator treats it as a retryable stage failure.
var ErrNoProviderAvailable = errors.New("no provider available")

// ErrDedupConflict signals that admission found the item already claimed or
// published. Control flow, not a fault: the task is skipped.
var ErrDedupConflict = errors.New("dedup conflict")

// ErrCycleInProgress is returned when a manual trigger races a running cycle.
var ErrCycleInProgress = errors.New("pipeline cycle already in progress")

// FailureKind classifies a provider invocation error for cooldown policy.
type FailureKind string

const (
	FailureQuota       FailureKind = "quota"
	FailureUnavailable FailureKind = "unavailable"
	FailureMalformed   FailureKind = "malformed"
)

// ProviderFailure wraps an error from a single provider invocation.
type ProviderFailure struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *ProviderFailure) Error() string {
	return fmt.Sprintf("provider %s (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderFailure) Unwrap() error { return e.Err }

// PublishFailure wraps an error from the publish gateway. Fatal failures
// (e.g. authentication) must not be retried at any level.
type PublishFailure struct {
	Fatal bool
	Err   error
}

func (e *PublishFailure) Error() string {
	if e.Fatal {
		return fmt.Sprintf("publish failed permanently: %v", e.Err)
	}
	return fmt.Sprintf("publish failed: %v", e.Err)
}

func (e *PublishFailure) Unwrap() error { return e.Err }

// IsFatalPublish reports whether err carries a non-retryable publish failure.
func IsFatalPublish(err error) bool {
	var pf *PublishFailure
	return errors.As(err, &pf) && pf.Fatal
}
