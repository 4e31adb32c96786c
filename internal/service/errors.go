package service

import "errors"

var (
	// ErrRange indicates a 1-based key index outside the stored list.
	ErrRange = errors.New("index out of range")

	// ErrEmptyKey indicates an add request without a key.
	ErrEmptyKey = errors.New("key is required")

	// ErrHistoryDisabled indicates usage history was requested but no
	// database is configured.
	ErrHistoryDisabled = errors.New("usage history is not enabled")
)
