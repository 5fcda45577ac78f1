package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound      = errors.New("not found")
	ErrFetch         = errors.New("fetch failed")
	ErrNoTabularFile = errors.New("no tabular file found")
	ErrNoTextColumn  = errors.New("no text column detected")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrCacheLocked   = errors.New("cache directory locked by another run")
)
