package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/sipfoundry/voicemail/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// counterDoc is one row of the "<bucket>.counter" collection.
type counterDoc struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// NextSequence atomically increments and returns the counter for key.
// The $inc upsert is the correctness mechanism: it is atomic on the
// server, so no value is handed out twice for a key across any number of
// process instances.
func (s *Store) NextSequence(ctx context.Context, key string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	opts := mongoopts.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(mongoopts.After)

	var doc counterDoc
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("%w: key %s: %v", store.ErrSequence, key, err)
	}
	return doc.Seq, nil
}

// CurrentSequence returns the counter's current value without
// incrementing. A key that was never incremented reads as zero.
func (s *Store) CurrentSequence(ctx context.Context, key string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var doc counterDoc
	err := s.counters.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return doc.Seq, nil
}
