package store

import "errors"

// Sentinel errors for the store package.
var (
	// ErrNotFound is returned when a message or variant cannot be found.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidID is returned when an invalid record identity is provided.
	ErrInvalidID = errors.New("store: invalid id")

	// ErrInvalidFolder is returned by the strict folder lookup for unknown
	// folder names.
	ErrInvalidFolder = errors.New("store: invalid folder name")

	// ErrInvalidVariantKind is returned by the strict variant-kind lookup
	// for unknown kind names.
	ErrInvalidVariantKind = errors.New("store: invalid audio identifier")

	// ErrSequence is returned when the sequence counter fails to increment.
	// Fatal to the caller; never retried.
	ErrSequence = errors.New("store: sequence increment failed")

	// ErrNotConnected is returned when operations are attempted before Connect().
	ErrNotConnected = errors.New("store: not connected")

	// ErrAlreadyConnected is returned when Connect() is called twice.
	ErrAlreadyConnected = errors.New("store: already connected")
)

// Error checking helpers.

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
