package account

import "errors"

// Domain errors for the account package.
var (
	// ErrAccountNotFound is returned when no account matches an id or device id.
	ErrAccountNotFound = errors.New("account: not found")

	// ErrAccountExists is returned when creating an account whose id is taken.
	ErrAccountExists = errors.New("account: already exists")

	// ErrNotActivated is returned when strict mode rejects a device that is
	// not bound to any account. It always wraps ErrAccountNotFound.
	ErrNotActivated = errors.New("account: not activated")

	// ErrDeviceBound is returned when a device id already belongs to a
	// different account.
	ErrDeviceBound = errors.New("account: device bound to another account")

	// ErrInvalidID is returned for empty account or device ids.
	ErrInvalidID = errors.New("account: invalid id")
)
