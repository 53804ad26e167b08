package postgres

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/sipfoundry/voicemail/store"
)

// messageRow maps a row of the messages table.
type messageRow struct {
	ID              string         `db:"id"`
	Owner           string         `db:"owner"`
	OwnerURI        string         `db:"owner_uri"`
	Label           string         `db:"label"`
	MessageID       string         `db:"message_id"`
	Unheard         bool           `db:"unheard"`
	FromURI         string         `db:"from_uri"`
	Subject         string         `db:"subject"`
	Priority        string         `db:"priority"`
	ReceivedAt      time.Time      `db:"received_at"`
	OtherRecipients pq.StringArray `db:"other_recipients"`
	AudioFormat     string         `db:"audio_format"`
}

// variantRow maps a row of the variants table, payload columns excluded.
// Payload bytes are fetched separately by OpenVariant.
type variantRow struct {
	ID              string    `db:"id"`
	VoicemailID     string    `db:"voicemail_id"`
	AudioIdentifier string    `db:"audio_identifier"`
	Filename        string    `db:"filename"`
	Duration        int64     `db:"duration"`
	RecordedAt      time.Time `db:"recorded_at"`
	FilePath        string    `db:"file_path"`
	AudioFormat     string    `db:"audio_format"`
	ContentLength   int64     `db:"content_length"`
}

// payloadRow carries the binary payload columns of a variant.
type payloadRow struct {
	Payload    []byte         `db:"payload"`
	PayloadURI sql.NullString `db:"payload_uri"`
}

func rowToMessage(r *messageRow) *store.Message {
	priority, ok := store.TryLookupPriority(r.Priority)
	if !ok {
		priority = store.PriorityNormal
	}
	return &store.Message{
		ID:              r.ID,
		Owner:           r.Owner,
		OwnerURI:        r.OwnerURI,
		Label:           r.Label,
		MessageID:       r.MessageID,
		Unheard:         r.Unheard,
		FromURI:         r.FromURI,
		Subject:         r.Subject,
		Priority:        priority,
		Timestamp:       r.ReceivedAt,
		OtherRecipients: append([]string(nil), r.OtherRecipients...),
		AudioFormat:     r.AudioFormat,
	}
}

func messageToRow(msg *store.Message) *messageRow {
	return &messageRow{
		ID:              msg.ID,
		Owner:           msg.Owner,
		OwnerURI:        msg.OwnerURI,
		Label:           msg.Label,
		MessageID:       msg.MessageID,
		Unheard:         msg.Unheard,
		FromURI:         msg.FromURI,
		Subject:         msg.Subject,
		Priority:        string(msg.Priority),
		ReceivedAt:      msg.Timestamp,
		OtherRecipients: pq.StringArray(msg.OtherRecipients),
		AudioFormat:     msg.AudioFormat,
	}
}

func rowToVariant(r *variantRow) *store.AudioVariant {
	// Unknown identifiers are preserved as-is so legacy rows survive a
	// read-modify-write cycle unchanged.
	return &store.AudioVariant{
		ID:            r.ID,
		VoicemailID:   r.VoicemailID,
		Kind:          store.VariantKind(r.AudioIdentifier),
		Filename:      r.Filename,
		Duration:      r.Duration,
		Timestamp:     r.RecordedAt,
		FilePath:      r.FilePath,
		AudioFormat:   r.AudioFormat,
		ContentLength: r.ContentLength,
	}
}
