package storage

import "errors"

// Storage errors shared by all ObservationStore implementations.
var (
	// ErrNotFound is returned when a requested observation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting an observation whose
	// (data_type, date) pair already exists. Revisions go through Upsert.
	ErrDuplicateKey = errors.New("duplicate key: observation exists for (data_type, date)")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
