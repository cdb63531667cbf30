package store

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when no record matches the key.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when inserting over a taken key.
	ErrAlreadyExists = errors.New("record already exists")
)
