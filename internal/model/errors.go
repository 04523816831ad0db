package model

import "errors"

// Sentinel errors callers are expected to branch on with errors.Is.
// QuotaExceeded is deliberately absent: a quota breach is a file status,
// not an error.
var (
	ErrNotFound   = errors.New("record not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("already exists")
)
