package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrValidation     = errors.New("invalid input")
	ErrInternalServer = errors.New("internal server error")

	// Login outcome errors
	ErrLockedOut         = errors.New("too many failed attempts")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrBlockedIP         = errors.New("ip address is blocked")
)
