// Package mongo provides a MongoDB implementation of store.Store.
//
// The layout follows the classic GridFS voicemail schema: message metadata
// lives in "<bucket>.metadata", variant payloads in the GridFS bucket
// "<bucket>" (files/chunks collections), and sequence counters in
// "<bucket>.counter".
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/sipfoundry/voicemail/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Store implements store.Store using MongoDB with GridFS payloads.
type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	metadata  *mongo.Collection
	counters  *mongo.Collection
	bucket    *mongo.GridFSBucket
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a new MongoDB store with the provided client.
// Call Connect() to initialize the collections and indexes.
func New(client *mongo.Client, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		client: client,
		opts:   o,
		logger: o.logger,
	}
}

// Connect initializes the database, collections, GridFS bucket and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if atomic.LoadInt32(&s.connected) == 1 {
		return store.ErrAlreadyConnected
	}

	if s.client == nil {
		return fmt.Errorf("mongo: client is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}

	s.db = s.client.Database(s.opts.database)
	s.metadata = s.db.Collection(s.opts.bucket + ".metadata")
	s.counters = s.db.Collection(s.opts.bucket + ".counter")
	s.bucket = s.db.GridFSBucket(mongoopts.GridFSBucket().SetName(s.opts.bucket))

	if err := s.ensureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	atomic.StoreInt32(&s.connected, 1)
	s.logger.Info("connected to MongoDB",
		"database", s.opts.database, "bucket", s.opts.bucket)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the MongoDB client.
func (s *Store) Close(ctx context.Context) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil
	}
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

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

// ensureIndexes creates required indexes.
func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: store.FieldUser, Value: 1}}},
		{Keys: bson.D{bson.E{Key: store.FieldMessageID, Value: 1}}},
		// Compound index for the (owner, label, messageId) lookup and the
		// folder listings ordered by time.
		{Keys: bson.D{
			bson.E{Key: store.FieldUser, Value: 1},
			bson.E{Key: store.FieldLabel, Value: 1},
			bson.E{Key: store.FieldTimestamp, Value: -1},
		}},
		{Keys: bson.D{
			bson.E{Key: store.FieldUser, Value: 1},
			bson.E{Key: store.FieldLabel, Value: 1},
			bson.E{Key: store.FieldMessageID, Value: 1},
		}},
	}

	if _, err := s.metadata.Indexes().CreateMany(ctx, indexes); err != nil {
		return err
	}

	// Variant lookup by parent message identity.
	files := s.db.Collection(s.opts.bucket + ".files")
	_, err := files.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: "metadata." + store.FieldVoicemailID, Value: 1}}},
		{Keys: bson.D{bson.E{Key: "filename", Value: 1}}},
	})
	return err
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)
