// Package store provides interfaces and types for voicemail message storage.
// Implementations are in store/mongo, store/postgres, and store/memory
// subpackages.
//
// # Data Model
//
// A voicemail is a metadata record (Message) with one to three attached
// audio payloads (AudioVariant). The metadata record carries the mailbox
// owner, the folder label, the externally visible message id and the
// delivery details; each variant carries the audio attributes and a
// back-reference to its parent record.
//
// # Visibility Ordering
//
// A Message must never be observable by readers before at least one of its
// variants has been durably written. StoreVariant therefore writes the
// binary payload first and inserts the metadata record only afterwards, and
// only when the record did not already exist. If the payload write fails,
// nothing is persisted. The inverse half-applied state (metadata without
// variants, possible if a delete dies between its two phases) is tolerated
// by treating "no variants" as "no message" on every read path.
//
// Known limitation: the existence check and the metadata insert in
// StoreVariant are not a single atomic operation. Two concurrent first
// writes for the same (owner, label, messageId) can each observe "absent"
// and each insert a record, leaving duplicate metadata for one logical
// message. This matches the behavior of the system this store descends
// from and is deliberately not papered over here.
//
// # Sequence Atomicity
//
// Message-id uniqueness depends entirely on the backend's atomic
// increment-and-return primitive (findOneAndUpdate with $inc and upsert on
// MongoDB, INSERT ... ON CONFLICT ... RETURNING on PostgreSQL). An
// in-process lock is not a substitute in a multi-instance deployment and
// must not be relied upon.
package store

import (
	"context"
	"io"
)

// Store is the storage interface for the voicemail message store.
//
// All operations are safe for concurrent use across any number of process
// instances; correctness relies on database-level atomicity, not external
// locking.
type Store interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	SequenceCounter
	MessageReader
	VariantReader
	MessageWriter
	MessageEraser
}

// MessageReader provides metadata lookups.
type MessageReader interface {
	// FindByLabel returns the owner's messages under a label, ordered by
	// descending timestamp. An empty result is not an error.
	FindByLabel(ctx context.Context, owner, label string, unheardOnly bool) ([]*Message, error)

	// FindMessageIDs is FindByLabel projected onto message ids, same order.
	FindMessageIDs(ctx context.Context, owner, label string, unheardOnly bool) ([]string, error)

	// FindByMessageID retrieves a message by owner and message id across all
	// labels. Returns ErrNotFound if no such message exists.
	FindByMessageID(ctx context.Context, owner, messageID string) (*Message, error)

	// FindInLabel retrieves a message by owner, label and message id.
	// Returns ErrNotFound if no such message exists.
	FindInLabel(ctx context.Context, owner, label, messageID string) (*Message, error)
}

// VariantReader provides access to a message's audio variants.
type VariantReader interface {
	// Variants returns every variant attached to the message.
	Variants(ctx context.Context, msg *Message) ([]*AudioVariant, error)

	// VariantByFilename returns the variant with the given stored filename.
	// Returns ErrNotFound if the message has no such variant.
	VariantByFilename(ctx context.Context, msg *Message, filename string) (*AudioVariant, error)

	// VariantByKind returns the first variant matching any of the given
	// kinds, scanning kinds in the caller-specified order.
	// Returns ErrNotFound if none match.
	VariantByKind(ctx context.Context, msg *Message, kinds ...VariantKind) (*AudioVariant, error)

	// OpenVariant returns a reader over the variant's binary payload.
	// The caller is responsible for closing the reader.
	OpenVariant(ctx context.Context, v *AudioVariant) (io.ReadCloser, error)
}

// MessageWriter provides creation and mutation operations.
type MessageWriter interface {
	// StoreVariant persists an audio payload as a variant of the message
	// identified by (owner, label, messageID). If no metadata record exists
	// yet, one is built from desc and inserted after, and only after, the
	// payload write succeeds. See the package documentation for the
	// visibility-ordering contract and the known check-then-insert race.
	StoreVariant(ctx context.Context, content io.Reader, filename string, kind VariantKind,
		label, messageID string, owner Owner, desc *MessageDescriptor, unheard bool) (*AudioVariant, error)

	// Move rewrites the message's label in place. If markHeard is true the
	// unheard flag is also cleared. No notification fires at this layer.
	Move(ctx context.Context, msg *Message, newLabel string, markHeard bool) error

	// SetUnheard sets the unheard flag.
	SetUnheard(ctx context.Context, msg *Message, unheard bool) error

	// UpdateSubject rewrites the subject. Metadata-only mutation.
	UpdateSubject(ctx context.Context, msg *Message, subject string) error

	// Copy duplicates the message under a new identity with owner, label,
	// message id and subject rewritten and unheard forced true. Every source
	// variant's payload is duplicated under a filename with the message-id
	// substring replaced, and each copy's parent reference is rewired to the
	// new record.
	Copy(ctx context.Context, msg *Message, dest Owner, newLabel, newMessageID, newSubject string) (*Message, error)

	// RenameOwner bulk-rewrites the owner fields on every record matching
	// oldOwner. Message identities and payloads are untouched.
	RenameOwner(ctx context.Context, newOwner Owner, oldOwner string) error
}

// MessageEraser provides destructive operations.
type MessageEraser interface {
	// Delete removes all of the message's variant payloads, then the
	// metadata record. A crash between the two phases leaves metadata that
	// references no payloads; read paths treat that state as "no message".
	Delete(ctx context.Context, msg *Message) error

	// DeleteVariant removes a single variant payload and its file record.
	DeleteVariant(ctx context.Context, v *AudioVariant) error

	// DeleteOwner removes every message owned by owner (full mailbox wipe).
	DeleteOwner(ctx context.Context, owner string) error

	// Purge removes every message for owner under label. Used to empty the
	// deleted folder.
	Purge(ctx context.Context, owner, label string) error
}

// Owner identifies the mailbox user a record belongs to.
type Owner struct {
	// Name is the mailbox user name, persisted in the "user" field.
	Name string
	// URI is the user's address, persisted in the "userURI" field.
	URI string
}
