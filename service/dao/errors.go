package dao

import "errors"

// Sentinel errors shared by every record mirror; detect them with errors.Is.
var (
	// ErrNotFound is returned when no record exists for the requested id.
	ErrNotFound = errors.New("dao: not found")

	// ErrInvalidID is returned for an empty id.
	ErrInvalidID = errors.New("dao: invalid id")

	// ErrNilEntity is returned when saving a nil record.
	ErrNilEntity = errors.New("dao: nil entity")
)
