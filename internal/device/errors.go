package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrBotNotFound) {
//	    // handle not found case
//	}
var (
	// ErrBotNotFound is returned when a did does not exist.
	ErrBotNotFound = errors.New("device: bot not found")

	// ErrInvalidDID is returned when a did is empty.
	ErrInvalidDID = errors.New("device: invalid did")

	// ErrInvalidDeviceID is returned when an app device identifier is empty.
	ErrInvalidDeviceID = errors.New("device: invalid device id")
)
