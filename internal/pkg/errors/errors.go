package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRateLimited is returned when a sliding-window cap is hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrLeaseHeld is returned when another worker already holds a lease.
	ErrLeaseHeld = errors.New("lease held")
)
