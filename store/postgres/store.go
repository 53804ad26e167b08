// Package postgres provides a PostgreSQL implementation of store.Store.
//
// Message metadata and variant rows live in relational tables; variant
// payloads are stored inline as BYTEA, or offloaded to an external
// store.FileStore (S3, GCS) when one is configured. Sequence counters use
// INSERT .. ON CONFLICT .. RETURNING for the atomic increment.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/sipfoundry/voicemail/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	db        *sqlx.DB
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a new PostgreSQL store with the provided database connection.
// Call Connect() to initialize the schema and indexes.
func New(db *sqlx.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:     db,
		opts:   o,
		logger: o.logger,
	}
}

// NewFromDB creates a new PostgreSQL store from a standard sql.DB connection.
// This wraps the sql.DB with sqlx for enhanced functionality.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	return New(sqlx.NewDb(db, "postgres"), opts...)
}

// messages, variants and counters return the prefixed table names.
func (s *Store) messages() string { return s.opts.tablePrefix + "_messages" }
func (s *Store) variants() string { return s.opts.tablePrefix + "_variants" }
func (s *Store) counters() string { return s.opts.tablePrefix + "_counters" }

// Connect initializes the schema and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres ping: %w", err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to PostgreSQL", "table_prefix", s.opts.tablePrefix)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the database connection.
func (s *Store) Close(ctx context.Context) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil
	}
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// ensureSchema creates the required tables and indexes.
func (s *Store) ensureSchema(ctx context.Context) error {
	createMessages := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			owner VARCHAR(255) NOT NULL,
			owner_uri VARCHAR(255) NOT NULL DEFAULT '',
			label VARCHAR(255) NOT NULL,
			message_id VARCHAR(255) NOT NULL,
			unheard BOOLEAN NOT NULL DEFAULT TRUE,
			from_uri VARCHAR(255) NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			priority VARCHAR(50) NOT NULL DEFAULT 'normal',
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			other_recipients TEXT[] NOT NULL DEFAULT '{}',
			audio_format VARCHAR(50) NOT NULL DEFAULT ''
		)
	`, s.messages())

	// No foreign key from variants to messages: the variant row is
	// written before its message row so that metadata never becomes
	// visible without a readable payload.
	createVariants := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			voicemail_id UUID NOT NULL,
			audio_identifier VARCHAR(50) NOT NULL,
			filename VARCHAR(255) NOT NULL,
			duration BIGINT NOT NULL DEFAULT 0,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			file_path TEXT NOT NULL DEFAULT '',
			audio_format VARCHAR(50) NOT NULL DEFAULT '',
			content_length BIGINT NOT NULL DEFAULT 0,
			payload BYTEA,
			payload_uri TEXT
		)
	`, s.variants())

	createCounters := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key VARCHAR(255) PRIMARY KEY,
			seq BIGINT NOT NULL DEFAULT 0
		)
	`, s.counters())

	for _, ddl := range []string{createMessages, createVariants, createCounters} {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s(owner)`, s.messages(), s.messages()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_message_id ON %s(owner, message_id)`, s.messages(), s.messages()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_label ON %s(owner, label, received_at DESC)`, s.messages(), s.messages()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_parent ON %s(voicemail_id)`, s.variants(), s.variants()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_filename ON %s(voicemail_id, filename)`, s.variants(), s.variants()),
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			s.logger.Warn("failed to create index", "error", err, "sql", idx)
		}
	}

	return nil
}

// checkConnected returns error if not connected.
func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// opCtx applies the configured operation timeout.
func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.timeout)
}
