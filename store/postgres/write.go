package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sipfoundry/voicemail/audio"
	"github.com/sipfoundry/voicemail/store"
)

const insertVariantSQL = `INSERT INTO %s
	(id, voicemail_id, audio_identifier, filename, duration, recorded_at,
	 file_path, audio_format, content_length, payload, payload_uri)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const insertMessageSQL = `INSERT INTO %s
	(id, owner, owner_uri, label, message_id, unheard, from_uri, subject,
	 priority, received_at, other_recipients, audio_format)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// StoreVariant persists an audio payload as a variant of the message
// identified by (owner, label, messageID), creating the metadata record if
// it does not exist yet.
//
// The variant row (and any offloaded payload) is written before the message
// row so that a record never becomes visible without readable audio. The
// existence check and the record insert are not one atomic operation; see
// the store package documentation for the duplicate-record race this
// leaves open.
func (s *Store) StoreVariant(ctx context.Context, content io.Reader, filename string, kind store.VariantKind,
	label, messageID string, owner store.Owner, desc *store.MessageDescriptor, unheard bool) (*store.AudioVariant, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	payload, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	existing, err := s.FindInLabel(ctx, owner.Name, label, messageID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	voicemailID := uuid.NewString()
	if existing != nil {
		voicemailID = existing.ID
	}

	v := &store.AudioVariant{
		ID:            uuid.NewString(),
		VoicemailID:   voicemailID,
		Kind:          kind,
		Filename:      filename,
		Duration:      desc.Duration,
		Timestamp:     desc.Timestamp,
		FilePath:      desc.FilePath,
		AudioFormat:   desc.AudioFormat,
		ContentLength: int64(len(payload)),
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now()
	}

	var inline []byte
	var payloadURI string
	if s.opts.files != nil {
		uri, err := s.opts.files.Upload(ctx, filename, audio.ContentTypeFor(desc.AudioFormat), bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("upload payload: %w", err)
		}
		payloadURI = uri
	} else {
		inline = payload
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	insertVariant := fmt.Sprintf(insertVariantSQL, s.variants())
	if _, err := s.db.ExecContext(ctx, insertVariant,
		v.ID, v.VoicemailID, string(v.Kind), v.Filename, v.Duration, v.Timestamp,
		v.FilePath, v.AudioFormat, v.ContentLength, inline, nullable(payloadURI)); err != nil {
		s.discardPayload(ctx, payloadURI)
		return nil, fmt.Errorf("insert variant: %w", err)
	}

	if existing != nil {
		return v, nil
	}

	msg := &store.Message{
		ID:              voicemailID,
		Owner:           owner.Name,
		OwnerURI:        owner.URI,
		Label:           label,
		MessageID:       messageID,
		Unheard:         unheard,
		FromURI:         desc.FromURI,
		Subject:         desc.Subject,
		Priority:        desc.Priority,
		Timestamp:       v.Timestamp,
		OtherRecipients: append([]string(nil), desc.OtherRecipients...),
		AudioFormat:     desc.AudioFormat,
	}
	if msg.Priority == "" {
		msg.Priority = store.PriorityNormal
	}

	if err := s.insertMessage(ctx, msg); err != nil {
		// Roll back the orphan payload so a failed first write leaves
		// nothing behind.
		deleteVariant := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.variants())
		if _, derr := s.db.ExecContext(ctx, deleteVariant, v.ID); derr != nil {
			s.logger.Warn("failed to clean up orphan variant row", "error", derr, "variant_id", v.ID)
		}
		s.discardPayload(ctx, payloadURI)
		return nil, err
	}
	return v, nil
}

func (s *Store) insertMessage(ctx context.Context, msg *store.Message) error {
	r := messageToRow(msg)
	query := fmt.Sprintf(insertMessageSQL, s.messages())
	if _, err := s.db.ExecContext(ctx, query,
		r.ID, r.Owner, r.OwnerURI, r.Label, r.MessageID, r.Unheard, r.FromURI,
		r.Subject, r.Priority, r.ReceivedAt, r.OtherRecipients, r.AudioFormat); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// discardPayload best-effort deletes an offloaded payload.
func (s *Store) discardPayload(ctx context.Context, uri string) {
	if uri == "" || s.opts.files == nil {
		return
	}
	if err := s.opts.files.Delete(ctx, uri); err != nil {
		s.logger.Warn("failed to clean up orphan payload", "error", err, "uri", uri)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Move rewrites the message's label in place, optionally clearing the
// unheard flag.
func (s *Store) Move(ctx context.Context, msg *store.Message, newLabel string, markHeard bool) error {
	query := fmt.Sprintf(`UPDATE %s SET label = $1 WHERE id = $2`, s.messages())
	args := []any{newLabel, msg.ID}
	if markHeard {
		query = fmt.Sprintf(`UPDATE %s SET label = $1, unheard = FALSE WHERE id = $2`, s.messages())
	}
	if err := s.updateOne(ctx, query, args...); err != nil {
		return err
	}
	msg.Label = newLabel
	if markHeard {
		msg.Unheard = false
	}
	return nil
}

// SetUnheard sets the unheard flag.
func (s *Store) SetUnheard(ctx context.Context, msg *store.Message, unheard bool) error {
	query := fmt.Sprintf(`UPDATE %s SET unheard = $1 WHERE id = $2`, s.messages())
	if err := s.updateOne(ctx, query, unheard, msg.ID); err != nil {
		return err
	}
	msg.Unheard = unheard
	return nil
}

// UpdateSubject rewrites the subject.
func (s *Store) UpdateSubject(ctx context.Context, msg *store.Message, subject string) error {
	query := fmt.Sprintf(`UPDATE %s SET subject = $1 WHERE id = $2`, s.messages())
	if err := s.updateOne(ctx, query, subject, msg.ID); err != nil {
		return err
	}
	msg.Subject = subject
	return nil
}

func (s *Store) updateOne(ctx context.Context, query string, args ...any) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Copy duplicates the message under a new identity for dest, rewriting the
// label, message id and subject and forcing unheard. Every variant payload
// is duplicated; offloaded payloads are re-uploaded under the new filename.
func (s *Store) Copy(ctx context.Context, msg *store.Message, dest store.Owner, newLabel, newMessageID, newSubject string) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	variants, err := s.Variants(ctx, msg)
	if err != nil {
		return nil, err
	}

	copied := *msg
	copied.ID = uuid.NewString()
	copied.Owner = dest.Name
	copied.OwnerURI = dest.URI
	copied.Label = newLabel
	copied.MessageID = newMessageID
	copied.Subject = newSubject
	copied.Unheard = true
	copied.OtherRecipients = append([]string(nil), msg.OtherRecipients...)

	for _, v := range variants {
		if err := s.copyVariant(ctx, v, copied.ID, msg.MessageID, newMessageID); err != nil {
			return nil, err
		}
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.insertMessage(opCtx, &copied); err != nil {
		return nil, err
	}
	return &copied, nil
}

func (s *Store) copyVariant(ctx context.Context, v *store.AudioVariant, newVoicemailID, oldMessageID, newMessageID string) error {
	newFilename := strings.Replace(v.Filename, oldMessageID, newMessageID, 1)

	content, err := s.OpenVariant(ctx, v)
	if err != nil {
		return err
	}
	defer content.Close()

	payload, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	var inline []byte
	var payloadURI string
	if s.opts.files != nil {
		uri, err := s.opts.files.Upload(ctx, newFilename, audio.ContentTypeFor(v.AudioFormat), bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("upload payload: %w", err)
		}
		payloadURI = uri
	} else {
		inline = payload
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(insertVariantSQL, s.variants())
	if _, err := s.db.ExecContext(opCtx, query,
		uuid.NewString(), newVoicemailID, string(v.Kind), newFilename, v.Duration, v.Timestamp,
		v.FilePath, v.AudioFormat, v.ContentLength, inline, nullable(payloadURI)); err != nil {
		s.discardPayload(opCtx, payloadURI)
		return fmt.Errorf("insert variant: %w", err)
	}
	return nil
}

// RenameOwner bulk-rewrites the owner fields on every record matching
// oldOwner.
func (s *Store) RenameOwner(ctx context.Context, newOwner store.Owner, oldOwner string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET owner = $1, owner_uri = $2 WHERE owner = $3`, s.messages())
	if _, err := s.db.ExecContext(ctx, query, newOwner.Name, newOwner.URI, oldOwner); err != nil {
		return fmt.Errorf("rename owner: %w", err)
	}
	return nil
}
