package model

import "errors"

var (
	// ErrNotFound is returned when a referenced item does not exist or is
	// soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a record would duplicate a unique key.
	ErrConflict = errors.New("already exists")
)
