package engine

import "errors"

var (
	// ErrPermissionDenied rejects a mutation attempted without current
	// admin capability, before any store call is made.
	ErrPermissionDenied = errors.New("admin capability required")

	// ErrNoSnapshot means no match snapshot has been received yet.
	ErrNoSnapshot = errors.New("no match snapshot available")

	ErrUnknownTeam     = errors.New("unknown team")
	ErrInvalidQuarter  = errors.New("quarter must be between 1 and 4")
	ErrInvalidDuration = errors.New("quarter duration must be positive")
	ErrInvalidEvent    = errors.New("unknown event type")
	ErrPinRequired     = errors.New("admin pin hash required for setup")
)
