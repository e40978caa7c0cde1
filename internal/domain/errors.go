package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUserNotFound      = errors.New("user not found")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrMissingSlot       = errors.New("game slot not found")
	ErrAmbiguousSlot     = errors.New("game slot is ambiguous")
	ErrKeyNotFound       = errors.New("config key not found")
	ErrSlotNotJSON       = errors.New("game slot elements are not JSON")
)

// UpstreamError reports a non-success status from a dependency (Roblox, the LLM provider).
type UpstreamError struct {
	Service string
	Status  int
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s returned %d: %v", e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("%s returned %d", e.Service, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstreamError creates an UpstreamError for the given service and status.
func NewUpstreamError(service string, status int, err error) *UpstreamError {
	return &UpstreamError{Service: service, Status: status, Err: err}
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsSlotError reports whether err came from a game document anchor problem.
// Slot errors skip the edit; they never fail the request.
func IsSlotError(err error) bool {
	return errors.Is(err, ErrMissingSlot) || errors.Is(err, ErrAmbiguousSlot) || errors.Is(err, ErrKeyNotFound)
}
