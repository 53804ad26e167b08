package store

import (
	"time"
)

// Priority marks a message as normal or urgent delivery.
type Priority string

// Priority values, persisted in the "priority" field.
const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
)

// TryLookupPriority maps a stored priority id to a Priority.
// Unknown values report ok=false.
func TryLookupPriority(id string) (Priority, bool) {
	switch Priority(id) {
	case PriorityNormal, PriorityUrgent:
		return Priority(id), true
	default:
		return "", false
	}
}

// Persisted field names. Shared by all backends for wire/storage
// compatibility with the store this package descends from.
const (
	FieldUser            = "user"
	FieldLabel           = "label"
	FieldUnheard         = "unheard"
	FieldUserURI         = "userURI"
	FieldFromURI         = "fromURI"
	FieldMessageID       = "messageId"
	FieldDuration        = "duration"
	FieldTimestamp       = "timestamp"
	FieldSubject         = "subject"
	FieldPriority        = "priority"
	FieldOtherRecipients = "otherRecipients"
	FieldAudioFormat     = "audioFormat"
	FieldAudioIdentifier = "audioIdentifier"
	FieldFilePath        = "filePath"
	FieldContentLength   = "contentLength"
	FieldVoicemailID     = "voicemailId"
	FieldFilename        = "filename"
)

// Message is the metadata record for one logical voicemail, greeting or
// recording. Exactly one record exists per (owner, label, messageId) triple
// under correct operation.
type Message struct {
	// ID is the backend-assigned record identity (hex object id or UUID),
	// distinct from the externally visible MessageID.
	ID string

	Owner     string
	OwnerURI  string
	Label     string
	MessageID string
	Unheard   bool
	FromURI   string
	Subject   string
	Priority  Priority
	// Timestamp is the delivery time. Backends persist it as epoch millis.
	Timestamp       time.Time
	OtherRecipients []string
	AudioFormat     string
}

// Urgent reports whether the message was delivered with urgent priority.
func (m *Message) Urgent() bool {
	return m.Priority == PriorityUrgent
}

// Folder returns the message's label as a Folder, with ok=false for
// reserved slot labels and legacy values outside the folder set.
func (m *Message) Folder() (Folder, bool) {
	return TryLookupFolder(m.Label)
}

// AudioVariant is one stored audio rendition of a message. The binary
// payload itself is owned by the backend blob store, not embedded here.
type AudioVariant struct {
	// ID is the backend-assigned blob identity.
	ID string
	// VoicemailID is the parent Message record identity.
	VoicemailID string

	Kind     VariantKind
	Filename string
	// Duration of the audio in whole seconds.
	Duration      int64
	Timestamp     time.Time
	FilePath      string
	AudioFormat   string
	ContentLength int64
}

// MessageDescriptor describes a message submission. It seeds the metadata
// record when a new message is persisted and when derived messages
// (forward, copy) are composed. It is transient, never persisted as its
// own entity.
type MessageDescriptor struct {
	// ID is the destination user's address (persisted as userURI).
	ID              string
	FromURI         string
	Subject         string
	Timestamp       time.Time
	Priority        Priority
	OtherRecipients []string

	// Media attributes of the payload being submitted.
	Duration      int64
	FilePath      string
	AudioFormat   string
	ContentLength int64
}

// WithMedia returns a copy of the descriptor with the media attributes
// replaced by those of another descriptor. Used when a forwarded message
// reuses the delivery details of the forward but the media attributes of
// the audio actually being attached.
func (d *MessageDescriptor) WithMedia(media *MessageDescriptor) *MessageDescriptor {
	out := *d
	out.OtherRecipients = append([]string(nil), d.OtherRecipients...)
	out.Duration = media.Duration
	out.FilePath = media.FilePath
	out.AudioFormat = media.AudioFormat
	out.ContentLength = media.ContentLength
	return &out
}

// WithContentLength returns a copy of the descriptor with only the content
// length replaced. Used after audio concatenation produces a payload whose
// size differs from the source.
func (d *MessageDescriptor) WithContentLength(n int64) *MessageDescriptor {
	out := *d
	out.OtherRecipients = append([]string(nil), d.OtherRecipients...)
	out.ContentLength = n
	return &out
}

// DescriptorForVariant rebuilds the submission descriptor for an existing
// variant from its parent message and the variant attributes. This is the
// inverse of the mapping StoreVariant applies.
func DescriptorForVariant(msg *Message, v *AudioVariant) *MessageDescriptor {
	return &MessageDescriptor{
		ID:              msg.OwnerURI,
		FromURI:         msg.FromURI,
		Subject:         msg.Subject,
		Timestamp:       msg.Timestamp,
		Priority:        msg.Priority,
		OtherRecipients: append([]string(nil), msg.OtherRecipients...),
		Duration:        v.Duration,
		FilePath:        v.FilePath,
		AudioFormat:     v.AudioFormat,
		ContentLength:   v.ContentLength,
	}
}
