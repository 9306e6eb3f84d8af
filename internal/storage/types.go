package storage

import "errors"

var (
	// ErrNotFound indicates that an ISIN or LEI has no corresponding
	// record. It is a definitive miss, not a transient condition.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)
