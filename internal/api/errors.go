package api

import (
	"errors"
	"fmt"
	"time"
)

// Typed results for all precondition violations.
// They are terminal for the caller, nothing is retried internally
// except the claim compare-and-set (see engine).
var (
	// ErrNotFound signals an unknown id, handle or direction.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a duplicate creation or an already claimed ticket.
	ErrConflict = errors.New("conflict")
	// ErrNotEligible signals a capability or limit mismatch.
	ErrNotEligible = errors.New("not eligible")
	// ErrForbidden signals that the actor is not the authorized party for the transition.
	ErrForbidden = errors.New("forbidden")
	// ErrTooSoon signals that the release cooldown has not elapsed.
	ErrTooSoon = errors.New("too soon")
	// ErrResourceBusy signals that the broker already holds another open claim.
	ErrResourceBusy = errors.New("resource busy")
	// ErrInvalidArgument signals malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnavailable signals an exhausted storage retry.
	ErrUnavailable = errors.New("unavailable")
)

// TooSoonError carries the remaining wait for the caller to display.
type TooSoonError struct {
	Remaining time.Duration
}

func (e TooSoonError) Error() string {
	return fmt.Sprintf("too soon: wait %s", e.Remaining)
}

// Is matches the error against ErrTooSoon.
func (e TooSoonError) Is(target error) bool {
	return target == ErrTooSoon
}
