package store

import "errors"

// Sentinel errors returned by Store implementations. Callers compare
// with errors.Is rather than matching backend-specific error strings.
var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrInvalidInput  = errors.New("store: invalid input")
)
