package mongo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sipfoundry/voicemail/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// StoreVariant persists a payload as a GridFS file, inserting the metadata
// record only after the upload succeeds and only when no record existed
// for the (owner, label, messageId) triple.
//
// The existence check and the insert are not one atomic operation: two
// concurrent first writes for the same triple can both observe "absent"
// and both insert, leaving duplicate records for one logical message.
// Known limitation, inherited from the schema this store descends from.
func (s *Store) StoreVariant(ctx context.Context, content io.Reader, filename string, kind store.VariantKind,
	label, messageID string, owner store.Owner, desc *store.MessageDescriptor, unheard bool) (*store.AudioVariant, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	existing, err := s.FindInLabel(ctx, owner.Name, label, messageID)
	if err != nil && !store.IsNotFound(err) {
		return nil, err
	}

	var doc *messageDoc
	if existing == nil {
		// Draft only; nothing is persisted until the payload upload
		// succeeds.
		doc = draftDoc(owner, label, messageID, desc, unheard)
		doc.ID = bson.NewObjectID()
	}

	voicemailID := ""
	if existing != nil {
		voicemailID = existing.ID
	} else {
		voicemailID = doc.ID.Hex()
	}

	ts := desc.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	meta := variantMeta{
		VoicemailID:     voicemailID,
		AudioIdentifier: string(kind),
		Duration:        desc.Duration,
		Timestamp:       ts.UnixMilli(),
		FilePath:        desc.FilePath,
		AudioFormat:     desc.AudioFormat,
		ContentLength:   desc.ContentLength,
	}

	uploadOpts := mongoopts.GridFSUpload().SetMetadata(meta)
	fileID, err := s.bucket.UploadFromStream(ctx, filename, content, uploadOpts)
	if err != nil {
		return nil, fmt.Errorf("upload variant: %w", err)
	}

	if existing == nil {
		if _, err := s.metadata.InsertOne(ctx, doc); err != nil {
			// The payload is orphaned; readers never see the message
			// because the metadata insert failed.
			if derr := s.bucket.Delete(ctx, fileID); derr != nil {
				s.logger.Error("failed to remove orphaned variant payload",
					"error", derr, "file_id", fileID.Hex())
			}
			return nil, fmt.Errorf("insert message: %w", err)
		}
	}

	return &store.AudioVariant{
		ID:            fileID.Hex(),
		VoicemailID:   voicemailID,
		Kind:          kind,
		Filename:      filename,
		Duration:      desc.Duration,
		Timestamp:     ts,
		FilePath:      desc.FilePath,
		AudioFormat:   desc.AudioFormat,
		ContentLength: desc.ContentLength,
	}, nil
}

func draftDoc(owner store.Owner, label, messageID string, desc *store.MessageDescriptor, unheard bool) *messageDoc {
	priority := desc.Priority
	if priority == "" {
		priority = store.PriorityNormal
	}
	ts := desc.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &messageDoc{
		User:            owner.Name,
		UserURI:         owner.URI,
		Label:           label,
		MessageID:       messageID,
		Unheard:         unheard,
		FromURI:         desc.FromURI,
		Subject:         desc.Subject,
		Priority:        string(priority),
		Timestamp:       ts.UnixMilli(),
		OtherRecipients: desc.OtherRecipients,
		AudioFormat:     desc.AudioFormat,
	}
}

// Move rewrites the label in place, optionally clearing the unheard flag.
func (s *Store) Move(ctx context.Context, msg *store.Message, newLabel string, markHeard bool) error {
	set := bson.M{store.FieldLabel: newLabel}
	if markHeard {
		set[store.FieldUnheard] = false
	}
	if err := s.updateOne(ctx, msg.ID, set); err != nil {
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
	if err := s.updateOne(ctx, msg.ID, bson.M{store.FieldUnheard: unheard}); err != nil {
		return err
	}
	msg.Unheard = unheard
	return nil
}

// UpdateSubject rewrites the subject.
func (s *Store) UpdateSubject(ctx context.Context, msg *store.Message, subject string) error {
	if err := s.updateOne(ctx, msg.ID, bson.M{store.FieldSubject: subject}); err != nil {
		return err
	}
	msg.Subject = subject
	return nil
}

func (s *Store) updateOne(ctx context.Context, id string, set bson.M) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrInvalidID
	}

	result, err := s.metadata.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Copy duplicates the metadata record and every variant payload under a
// new identity, rewriting owner, label, message id and subject, forcing
// unheard, and rewiring each payload's parent back-reference.
func (s *Store) Copy(ctx context.Context, msg *store.Message, dest store.Owner, newLabel, newMessageID, newSubject string) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	variants, err := s.Variants(ctx, msg)
	if err != nil {
		return nil, err
	}

	doc := messageToDoc(msg)
	doc.ID = bson.NewObjectID()
	doc.User = dest.Name
	doc.UserURI = dest.URI
	doc.Label = newLabel
	doc.MessageID = newMessageID
	doc.Subject = newSubject
	doc.Unheard = true

	for _, v := range variants {
		if err := s.copyVariant(ctx, v, doc.ID.Hex(), strings.Replace(v.Filename, msg.MessageID, newMessageID, 1)); err != nil {
			return nil, fmt.Errorf("copy variant %s: %w", v.Filename, err)
		}
	}

	if _, err := s.metadata.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert copy: %w", err)
	}
	return docToMessage(doc), nil
}

// copyVariant duplicates one GridFS payload under a new filename and
// parent reference.
func (s *Store) copyVariant(ctx context.Context, v *store.AudioVariant, newVoicemailID, newFilename string) error {
	src, err := s.OpenVariant(ctx, v)
	if err != nil {
		return err
	}
	defer src.Close()

	meta := variantMeta{
		VoicemailID:     newVoicemailID,
		AudioIdentifier: string(v.Kind),
		Duration:        v.Duration,
		Timestamp:       v.Timestamp.UnixMilli(),
		FilePath:        v.FilePath,
		AudioFormat:     v.AudioFormat,
		ContentLength:   v.ContentLength,
	}
	uploadOpts := mongoopts.GridFSUpload().SetMetadata(meta)
	if _, err := s.bucket.UploadFromStream(ctx, newFilename, src, uploadOpts); err != nil {
		return fmt.Errorf("upload copy: %w", err)
	}
	return nil
}

// RenameOwner rewrites the owner fields on every record matching oldOwner.
func (s *Store) RenameOwner(ctx context.Context, newOwner store.Owner, oldOwner string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.metadata.UpdateMany(ctx,
		bson.M{store.FieldUser: oldOwner},
		bson.M{"$set": bson.M{
			store.FieldUser:    newOwner.Name,
			store.FieldUserURI: newOwner.URI,
		}})
	if err != nil {
		return fmt.Errorf("rename owner: %w", err)
	}
	return nil
}

// Delete removes the variant payloads, then the metadata record. A crash
// between the two leaves metadata referencing no payloads; read paths
// treat zero variants as "message does not exist".
func (s *Store) Delete(ctx context.Context, msg *store.Message) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	variants, err := s.Variants(ctx, msg)
	if err != nil {
		return err
	}
	for _, v := range variants {
		if err := s.DeleteVariant(ctx, v); err != nil && !store.IsNotFound(err) {
			return err
		}
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	oid, err := bson.ObjectIDFromHex(msg.ID)
	if err != nil {
		return store.ErrInvalidID
	}
	if _, err := s.metadata.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// DeleteVariant removes a single GridFS payload.
func (s *Store) DeleteVariant(ctx context.Context, v *store.AudioVariant) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	oid, err := bson.ObjectIDFromHex(v.ID)
	if err != nil {
		return store.ErrInvalidID
	}
	if err := s.bucket.Delete(ctx, oid); err != nil {
		if errors.Is(err, mongo.ErrFileNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("delete variant: %w", err)
	}
	return nil
}

// DeleteOwner removes every message owned by owner.
func (s *Store) DeleteOwner(ctx context.Context, owner string) error {
	return s.deleteMany(ctx, bson.M{store.FieldUser: owner})
}

// Purge removes every message for owner under label.
func (s *Store) Purge(ctx context.Context, owner, label string) error {
	return s.deleteMany(ctx, bson.M{
		store.FieldUser:  owner,
		store.FieldLabel: label,
	})
}

func (s *Store) deleteMany(ctx context.Context, filter bson.M) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	cursor, err := s.metadata.Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("find messages: %w", err)
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return fmt.Errorf("decode messages: %w", err)
	}

	for i := range docs {
		if err := s.Delete(ctx, docToMessage(&docs[i])); err != nil && !store.IsNotFound(err) {
			return err
		}
	}
	return nil
}
