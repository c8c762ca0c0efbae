package repository

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrTransient = errors.New("transient store failure")
	// ErrStateChanged means a guarded seat transition touched fewer rows than expected.
	ErrStateChanged = errors.New("seat state changed concurrently")
)
