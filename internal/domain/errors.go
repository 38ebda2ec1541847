package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrConfiguration       = errors.New("configuration error")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderRejected    = errors.New("provider rejected request")
	ErrLedgerUnavailable   = errors.New("ledger unavailable")
	ErrStateConflict       = errors.New("job state changed concurrently")
	ErrArchivalFailed      = errors.New("archival failed")
)

// ErrRateLimited is returned when the provider answers 429. It matches
// ErrProviderUnavailable under errors.Is.
var ErrRateLimited = &wrappedError{msg: "provider rate limited", parent: ErrProviderUnavailable}

type wrappedError struct {
	msg    string
	parent error
}

func (e *wrappedError) Error() string { return e.msg }

func (e *wrappedError) Unwrap() error { return e.parent }

// ValidationError describes a rejected intake field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
