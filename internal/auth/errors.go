package auth

import "errors"

// Domain errors for the auth package.
var (
	// ErrTokenInvalid is returned for unknown, expired, revoked or foreign tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrAuthCodeInvalid is returned when an auth code does not match the uid.
	ErrAuthCodeInvalid = errors.New("auth: invalid auth code")

	// ErrTokenExists is returned by a repository when a token hash collides.
	ErrTokenExists = errors.New("auth: token already exists")
)
