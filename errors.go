package eventjoin

import (
	"errors"
	"fmt"
)

// MaxSources is the number of distinct sources one barrier can track,
// one bit of the active mask per source
const MaxSources = 64

var (
	// ErrTooManySources is returned when the groups name more than MaxSources sources
	ErrTooManySources = errors.New("too many sources")

	// ErrUnknownSource is returned when a source name is not part of the barrier
	ErrUnknownSource = errors.New("unknown source")

	// ErrEmptyGroup is returned for an action group without sources
	ErrEmptyGroup = errors.New("action group has no sources")

	// ErrCursorNotLive is returned when a cursor does not point at a live slot
	ErrCursorNotLive = errors.New("cursor does not reference a live slot")

	// ErrStaleEvent is returned for an arrival whose event is older than every
	// event the joiner can still accept
	ErrStaleEvent = errors.New("stale event")
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Message string
	Details string
	Err     error
}

func (e ValidationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func (e ValidationError) Unwrap() error {
	return e.Err
}
