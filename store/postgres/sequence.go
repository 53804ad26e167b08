package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sipfoundry/voicemail/store"
)

// NextSequence atomically increments and returns the counter for key. The
// upsert-and-return happens in a single statement, so concurrent callers
// across any number of processes never receive the same value.
func (s *Store) NextSequence(ctx context.Context, key string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (key, seq) VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET seq = %s.seq + 1
		RETURNING seq`, s.counters(), s.counters())

	var seq int64
	if err := s.db.GetContext(ctx, &seq, query, key); err != nil {
		return 0, fmt.Errorf("%w: increment %q: %v", store.ErrSequence, key, err)
	}
	return seq, nil
}

// CurrentSequence returns the counter's current value without incrementing.
func (s *Store) CurrentSequence(ctx context.Context, key string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT seq FROM %s WHERE key = $1`, s.counters())

	var seq int64
	if err := s.db.GetContext(ctx, &seq, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: read %q: %v", store.ErrSequence, key, err)
	}
	return seq, nil
}
