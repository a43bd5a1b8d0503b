package domain

import "errors"

// Sentinel errors for the application. Services return these (possibly
// wrapped); the HTTP layer maps them to transport status codes.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("resource already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidOperation = errors.New("operation would violate a conversation invariant")
	ErrInternal         = errors.New("internal server error")
)
