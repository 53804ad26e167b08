package voicemail

import (
	"errors"
	"fmt"

	"github.com/sipfoundry/voicemail/store"
)

// Sentinel errors for the voicemail package.
// Use errors.Is() to check for these errors.
//
// These errors wrap corresponding store-level errors where applicable,
// so errors.Is(err, voicemail.ErrNotFound) will match both manager-level
// and store-level "not found" errors.
var (
	// ErrNotFound is returned when a message or variant cannot be found.
	// Wraps store.ErrNotFound for consistent error checking.
	ErrNotFound = fmt.Errorf("voicemail: %w", store.ErrNotFound)

	// ErrStoreRequired is returned when no store is configured.
	ErrStoreRequired = errors.New("voicemail: store is required")

	// ErrNotConnected is returned when operations are attempted before Connect().
	// Wraps store.ErrNotConnected for consistent error checking.
	ErrNotConnected = fmt.Errorf("voicemail: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected for consistent error checking.
	ErrAlreadyConnected = fmt.Errorf("voicemail: %w", store.ErrAlreadyConnected)

	// ErrInvalidFolder is returned when a folder name fails the strict lookup.
	// Wraps store.ErrInvalidFolder for consistent error checking.
	ErrInvalidFolder = fmt.Errorf("voicemail: %w", store.ErrInvalidFolder)

	// ErrSequence is returned when message-id allocation fails. Fatal to the
	// operation; the manager never retries the counter.
	// Wraps store.ErrSequence for consistent error checking.
	ErrSequence = fmt.Errorf("voicemail: %w", store.ErrSequence)

	// ErrInvalidUser is returned when a mailbox user name contains invalid
	// characters.
	ErrInvalidUser = errors.New("voicemail: invalid user")

	// ErrNoAudio is returned when a message has no stored audio variant.
	ErrNoAudio = errors.New("voicemail: message has no audio")

	// ErrConcatenatorRequired is returned when a forward carries a comment
	// but no audio concatenator is configured.
	ErrConcatenatorRequired = errors.New("voicemail: audio concatenator is required")

	// ErrRecordingRequired is returned when a deposit or slot save is
	// attempted with a nil or discarded staged recording.
	ErrRecordingRequired = errors.New("voicemail: staged recording is required")

	// ErrInvalidGreetingType is returned for unknown greeting type names.
	ErrInvalidGreetingType = errors.New("voicemail: invalid greeting type")
)
