package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrImmutable is returned when updating a submission that is no longer Pending.
	ErrImmutable = errors.New("submission is immutable")
)
