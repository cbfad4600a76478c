package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrChecksumMismatch  = errors.New("checkpoint checksum mismatch")
	ErrNotRecoverable    = errors.New("checkpoint not recoverable")
	ErrRunNotInitialized = errors.New("batch run not initialized")
	ErrRunActive         = errors.New("batch run already active")
)
