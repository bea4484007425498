package types

import "errors"

// Error kinds. Callers wrap them with context and match with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)
