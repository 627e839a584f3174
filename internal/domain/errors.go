package domain

import "errors"

var (
	// ErrNotFound is returned when a record or rule does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned for missing or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstream is returned when the rules service cannot be reached or
	// answers with an error and no fallback is available.
	ErrUpstream = errors.New("upstream rules service failed")
)
