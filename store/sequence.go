package store

import (
	"context"
	"fmt"
)

// SequenceCounter is a durable per-key monotonically increasing integer
// generator. It produces the numeric part of externally visible message
// ids.
//
// The backing store, not application code, provides the atomicity: Next
// must be implemented with an atomic increment-and-return primitive so
// that no value is ever handed out twice for a key, across any number of
// process instances. Values may be skipped on failure; there is no
// rollback. A failed increment is surfaced as an error wrapping
// ErrSequence and is fatal to the caller - blind retry risks either
// stalling delivery or silently skipping ids.
type SequenceCounter interface {
	// NextSequence atomically increments and returns the counter for key.
	NextSequence(ctx context.Context, key string) (int64, error)

	// CurrentSequence returns the counter's current value without
	// incrementing. A key that was never incremented reads as zero.
	CurrentSequence(ctx context.Context, key string) (int64, error)
}

// Counter key and message id formats.
const (
	counterKeyFormat = "%04dMSGID"
	messageIDFormat  = "%d%08d"
)

// CounterKey returns the sequence counter key for a system identity,
// e.g. CounterKey(102) yields "0102MSGID".
func CounterKey(systemIdentity int) string {
	return fmt.Sprintf(counterKeyFormat, systemIdentity)
}

// FormatMessageID renders an externally visible message id from the numeric
// system identity and a sequence value, zero-padding the sequence to eight
// digits.
func FormatMessageID(systemIdentity int, sequence int64) string {
	return fmt.Sprintf(messageIDFormat, systemIdentity, sequence)
}
