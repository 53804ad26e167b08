package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sipfoundry/voicemail/store"
)

// Delete removes all of the message's variant payloads, then the metadata
// record.
func (s *Store) Delete(ctx context.Context, msg *store.Message) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	variants, err := s.Variants(ctx, msg)
	if err != nil {
		return err
	}
	for _, v := range variants {
		if err := s.DeleteVariant(ctx, v); err != nil {
			return err
		}
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.messages())
	if _, err := s.db.ExecContext(ctx, query, msg.ID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// DeleteVariant removes a single variant row and its payload.
func (s *Store) DeleteVariant(ctx context.Context, v *store.AudioVariant) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if s.opts.files != nil {
		query := fmt.Sprintf(`SELECT payload_uri FROM %s WHERE id = $1`, s.variants())
		var uri sql.NullString
		if err := s.db.GetContext(ctx, &uri, query, v.ID); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("load payload uri: %w", err)
			}
		} else if uri.Valid {
			s.discardPayload(ctx, uri.String)
		}
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.variants())
	if _, err := s.db.ExecContext(ctx, query, v.ID); err != nil {
		return fmt.Errorf("delete variant: %w", err)
	}
	return nil
}

// DeleteOwner removes every message owned by owner.
func (s *Store) DeleteOwner(ctx context.Context, owner string) error {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner = $1`, messageColumns, s.messages())
	return s.deleteMany(ctx, query, owner)
}

// Purge removes every message for owner under label.
func (s *Store) Purge(ctx context.Context, owner, label string) error {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner = $1 AND label = $2`, messageColumns, s.messages())
	return s.deleteMany(ctx, query, owner, label)
}

func (s *Store) deleteMany(ctx context.Context, query string, args ...any) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	findCtx, cancel := s.opCtx(ctx)
	defer cancel()

	var rows []messageRow
	if err := s.db.SelectContext(findCtx, &rows, query, args...); err != nil {
		return fmt.Errorf("find messages: %w", err)
	}

	for i := range rows {
		if err := s.Delete(ctx, rowToMessage(&rows[i])); err != nil {
			return err
		}
	}
	return nil
}
