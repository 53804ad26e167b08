package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/sipfoundry/voicemail/store"
)

const messageColumns = `id, owner, owner_uri, label, message_id, unheard, from_uri,
	subject, priority, received_at, other_recipients, audio_format`

const variantColumns = `id, voicemail_id, audio_identifier, filename, duration,
	recorded_at, file_path, audio_format, content_length`

// FindByLabel returns the owner's messages under a label, newest first.
func (s *Store) FindByLabel(ctx context.Context, owner, label string, unheardOnly bool) ([]*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner = $1 AND label = $2`,
		messageColumns, s.messages())
	if unheardOnly {
		query += ` AND unheard = TRUE`
	}
	query += ` ORDER BY received_at DESC`

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, owner, label); err != nil {
		return nil, fmt.Errorf("find by label: %w", err)
	}

	messages := make([]*store.Message, 0, len(rows))
	for i := range rows {
		messages = append(messages, rowToMessage(&rows[i]))
	}
	return messages, nil
}

// FindMessageIDs is FindByLabel projected onto message ids.
func (s *Store) FindMessageIDs(ctx context.Context, owner, label string, unheardOnly bool) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT message_id FROM %s WHERE owner = $1 AND label = $2`, s.messages())
	if unheardOnly {
		query += ` AND unheard = TRUE`
	}
	query += ` ORDER BY received_at DESC`

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, owner, label); err != nil {
		return nil, fmt.Errorf("find message ids: %w", err)
	}
	return ids, nil
}

// FindByMessageID retrieves a message by owner and message id across all
// labels.
func (s *Store) FindByMessageID(ctx context.Context, owner, messageID string) (*store.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner = $1 AND message_id = $2`,
		messageColumns, s.messages())
	return s.findOne(ctx, query, owner, messageID)
}

// FindInLabel retrieves a message by owner, label and message id.
func (s *Store) FindInLabel(ctx context.Context, owner, label, messageID string) (*store.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner = $1 AND label = $2 AND message_id = $3`,
		messageColumns, s.messages())
	return s.findOne(ctx, query, owner, label, messageID)
}

func (s *Store) findOne(ctx context.Context, query string, args ...any) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var row messageRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return rowToMessage(&row), nil
}

// Variants returns every variant attached to the message.
func (s *Store) Variants(ctx context.Context, msg *store.Message) ([]*store.AudioVariant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE voicemail_id = $1 ORDER BY filename`,
		variantColumns, s.variants())
	return s.findVariants(ctx, query, msg.ID)
}

// VariantByFilename returns the variant with the given stored filename.
func (s *Store) VariantByFilename(ctx context.Context, msg *store.Message, filename string) (*store.AudioVariant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE voicemail_id = $1 AND filename = $2`,
		variantColumns, s.variants())
	variants, err := s.findVariants(ctx, query, msg.ID, filename)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, store.ErrNotFound
	}
	return variants[0], nil
}

// VariantByKind returns the first variant matching any of the given kinds,
// scanning kinds in the caller-specified order.
func (s *Store) VariantByKind(ctx context.Context, msg *store.Message, kinds ...store.VariantKind) (*store.AudioVariant, error) {
	variants, err := s.Variants(ctx, msg)
	if err != nil {
		return nil, err
	}
	for _, kind := range kinds {
		for _, v := range variants {
			if v.Kind == kind {
				return v, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) findVariants(ctx context.Context, query string, args ...any) ([]*store.AudioVariant, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var rows []variantRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find variants: %w", err)
	}

	variants := make([]*store.AudioVariant, 0, len(rows))
	for i := range rows {
		variants = append(variants, rowToVariant(&rows[i]))
	}
	return variants, nil
}

// OpenVariant returns a reader over the variant's binary payload. Offloaded
// payloads are streamed from the configured file store; inline payloads are
// served from the BYTEA column.
func (s *Store) OpenVariant(ctx context.Context, v *store.AudioVariant) (io.ReadCloser, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT payload, payload_uri FROM %s WHERE id = $1`, s.variants())

	// The operation timeout covers only the row fetch; the returned reader
	// may outlive it, so offloaded payloads are opened with the caller's
	// context.
	fetchCtx, cancel := s.opCtx(ctx)
	defer cancel()

	var row payloadRow
	if err := s.db.GetContext(fetchCtx, &row, query, v.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("load payload: %w", err)
	}

	if row.PayloadURI.Valid && row.PayloadURI.String != "" {
		if s.opts.files == nil {
			return nil, fmt.Errorf("postgres: payload %s is offloaded but no file store is configured", v.ID)
		}
		return s.opts.files.Load(ctx, row.PayloadURI.String)
	}
	return io.NopCloser(bytes.NewReader(row.Payload)), nil
}
