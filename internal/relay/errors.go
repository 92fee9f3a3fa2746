package relay

import "errors"

var (
	// ErrUnreachable is returned without waiting when the target bot cannot
	// receive bus commands.
	ErrUnreachable = errors.New("relay: bot unreachable")

	// ErrTimeout is returned when no reply arrives before the deadline.
	ErrTimeout = errors.New("relay: wait for response timed out")

	// ErrTooManyPending is returned when the pending table is full.
	ErrTooManyPending = errors.New("relay: too many pending commands")

	// ErrInvalidCommand is returned when a command has no target.
	ErrInvalidCommand = errors.New("relay: invalid command")
)
