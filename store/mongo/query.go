package mongo

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sipfoundry/voicemail/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// FindByLabel returns the owner's messages under a label, newest first.
func (s *Store) FindByLabel(ctx context.Context, owner, label string, unheardOnly bool) ([]*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	filter := bson.M{
		store.FieldUser:  owner,
		store.FieldLabel: label,
	}
	if unheardOnly {
		filter[store.FieldUnheard] = true
	}

	findOpts := mongoopts.Find().
		SetSort(bson.D{bson.E{Key: store.FieldTimestamp, Value: -1}})

	cursor, err := s.metadata.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	msgs := make([]*store.Message, len(docs))
	for i := range docs {
		msgs[i] = docToMessage(&docs[i])
	}
	return msgs, nil
}

// FindMessageIDs is FindByLabel projected onto message ids.
func (s *Store) FindMessageIDs(ctx context.Context, owner, label string, unheardOnly bool) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	filter := bson.M{
		store.FieldUser:  owner,
		store.FieldLabel: label,
	}
	if unheardOnly {
		filter[store.FieldUnheard] = true
	}

	findOpts := mongoopts.Find().
		SetSort(bson.D{bson.E{Key: store.FieldTimestamp, Value: -1}}).
		SetProjection(bson.M{store.FieldMessageID: 1})

	cursor, err := s.metadata.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find message ids: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		MessageID string `bson:"messageId"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode message ids: %w", err)
	}

	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = docs[i].MessageID
	}
	return ids, nil
}

// FindByMessageID retrieves a message by owner and message id, searching
// all labels.
func (s *Store) FindByMessageID(ctx context.Context, owner, messageID string) (*store.Message, error) {
	return s.findOne(ctx, bson.M{
		store.FieldUser:      owner,
		store.FieldMessageID: messageID,
	})
}

// FindInLabel retrieves a message by owner, label and message id.
func (s *Store) FindInLabel(ctx context.Context, owner, label, messageID string) (*store.Message, error) {
	return s.findOne(ctx, bson.M{
		store.FieldUser:      owner,
		store.FieldLabel:     label,
		store.FieldMessageID: messageID,
	})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var doc messageDoc
	err := s.metadata.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return docToMessage(&doc), nil
}

// Variants returns every variant attached to the message.
func (s *Store) Variants(ctx context.Context, msg *store.Message) ([]*store.AudioVariant, error) {
	return s.findVariants(ctx, bson.M{
		"metadata." + store.FieldVoicemailID: msg.ID,
	})
}

// VariantByFilename returns the variant with the given stored filename.
func (s *Store) VariantByFilename(ctx context.Context, msg *store.Message, filename string) (*store.AudioVariant, error) {
	variants, err := s.findVariants(ctx, bson.M{
		"metadata." + store.FieldVoicemailID: msg.ID,
		"filename": filename,
	})
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, store.ErrNotFound
	}
	return variants[0], nil
}

// VariantByKind returns the first variant matching the given kinds in
// caller order.
func (s *Store) VariantByKind(ctx context.Context, msg *store.Message, kinds ...store.VariantKind) (*store.AudioVariant, error) {
	variants, err := s.Variants(ctx, msg)
	if err != nil {
		return nil, err
	}
	if v := store.SelectVariant(variants, kinds...); v != nil {
		return v, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) findVariants(ctx context.Context, filter bson.M) ([]*store.AudioVariant, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	cursor, err := s.bucket.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find variants: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []fileDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode variants: %w", err)
	}

	variants := make([]*store.AudioVariant, len(docs))
	for i := range docs {
		variants[i] = fileToVariant(&docs[i])
	}
	return variants, nil
}

// OpenVariant returns a reader over the variant's GridFS payload.
func (s *Store) OpenVariant(ctx context.Context, v *store.AudioVariant) (io.ReadCloser, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	oid, err := bson.ObjectIDFromHex(v.ID)
	if err != nil {
		return nil, store.ErrInvalidID
	}

	stream, err := s.bucket.OpenDownloadStream(ctx, oid)
	if err != nil {
		if errors.Is(err, mongo.ErrFileNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("open download stream: %w", err)
	}
	return stream, nil
}
