// Package apperr defines sentinel errors shared across the server.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	// ErrConfig marks configuration failures; the CLI maps it to exit code 2.
	ErrConfig = errors.New("configuration error")
)
