package repository

import "errors"

// ErrNotFound indicates the requested record does not exist in the backing
// store. Callers treat it as a value, not a fault.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates a uniqueness or ownership constraint rejected the
// write.
var ErrConflict = errors.New("record conflict")
