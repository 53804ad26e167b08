// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sipfoundry/voicemail/store"
)

// Store implements store.Store with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
type Store struct {
	mu        sync.RWMutex
	messages  map[string]*record  // record identity -> metadata
	variants  map[string]*blob    // blob identity -> variant + payload
	counters  sync.Map            // key -> *int64
	connected int32
}

// record is the stored metadata; reads hand out copies.
type record struct {
	msg store.Message
}

// blob is a stored variant with its payload.
type blob struct {
	variant store.AudioVariant
	payload []byte
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		messages: make(map[string]*record),
		variants: make(map[string]*blob),
	}
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// =============================================================================
// Sequence counter
// =============================================================================

// NextSequence atomically increments and returns the counter for key.
func (s *Store) NextSequence(_ context.Context, key string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	v, _ := s.counters.LoadOrStore(key, new(int64))
	return atomic.AddInt64(v.(*int64), 1), nil
}

// CurrentSequence returns the counter's current value.
func (s *Store) CurrentSequence(_ context.Context, key string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	v, ok := s.counters.Load(key)
	if !ok {
		return 0, nil
	}
	return atomic.LoadInt64(v.(*int64)), nil
}

// =============================================================================
// Reads
// =============================================================================

// FindByLabel returns the owner's messages under a label, newest first.
func (s *Store) FindByLabel(_ context.Context, owner, label string, unheardOnly bool) ([]*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Message
	for _, r := range s.messages {
		if r.msg.Owner != owner || r.msg.Label != label {
			continue
		}
		if unheardOnly && !r.msg.Unheard {
			continue
		}
		out = append(out, copyMessage(&r.msg))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// FindMessageIDs is FindByLabel projected onto message ids.
func (s *Store) FindMessageIDs(ctx context.Context, owner, label string, unheardOnly bool) ([]string, error) {
	msgs, err := s.FindByLabel(ctx, owner, label, unheardOnly)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.MessageID
	}
	return ids, nil
}

// FindByMessageID retrieves a message by owner and message id.
func (s *Store) FindByMessageID(_ context.Context, owner, messageID string) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.messages {
		if r.msg.Owner == owner && r.msg.MessageID == messageID {
			return copyMessage(&r.msg), nil
		}
	}
	return nil, store.ErrNotFound
}

// FindInLabel retrieves a message by owner, label and message id.
func (s *Store) FindInLabel(_ context.Context, owner, label, messageID string) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.findLocked(owner, label, messageID)
	if r == nil {
		return nil, store.ErrNotFound
	}
	return copyMessage(&r.msg), nil
}

// Variants returns every variant attached to the message.
func (s *Store) Variants(_ context.Context, msg *store.Message) ([]*store.AudioVariant, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.AudioVariant
	for _, b := range s.variants {
		if b.variant.VoicemailID == msg.ID {
			out = append(out, copyVariant(&b.variant))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Filename < out[j].Filename
	})
	return out, nil
}

// VariantByFilename returns the variant with the given stored filename.
func (s *Store) VariantByFilename(ctx context.Context, msg *store.Message, filename string) (*store.AudioVariant, error) {
	variants, err := s.Variants(ctx, msg)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		if v.Filename == filename {
			return v, nil
		}
	}
	return nil, store.ErrNotFound
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

// OpenVariant returns a reader over the variant payload.
func (s *Store) OpenVariant(_ context.Context, v *store.AudioVariant) (io.ReadCloser, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.variants[v.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b.payload)), nil
}

// =============================================================================
// Writes
// =============================================================================

// StoreVariant persists a payload, inserting the metadata record only after
// the payload has been fully read and stored.
func (s *Store) StoreVariant(_ context.Context, content io.Reader, filename string, kind store.VariantKind,
	label, messageID string, owner store.Owner, desc *store.MessageDescriptor, unheard bool) (*store.AudioVariant, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.findLocked(owner.Name, label, messageID)

	var msg store.Message
	newRecord := existing == nil
	if newRecord {
		msg = buildMessage(owner, label, messageID, desc, unheard)
	} else {
		msg = existing.msg
	}

	// Read the payload in full before anything becomes visible. A failed
	// read persists nothing.
	payload, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}

	v := &store.AudioVariant{
		ID:            uuid.New().String(),
		VoicemailID:   msg.ID,
		Kind:          kind,
		Filename:      filename,
		Duration:      desc.Duration,
		Timestamp:     desc.Timestamp,
		FilePath:      desc.FilePath,
		AudioFormat:   desc.AudioFormat,
		ContentLength: int64(len(payload)),
	}
	s.variants[v.ID] = &blob{variant: *v, payload: payload}
	if newRecord {
		s.messages[msg.ID] = &record{msg: msg}
	}
	return copyVariant(v), nil
}

// Move rewrites the label in place, optionally clearing the unheard flag.
func (s *Store) Move(_ context.Context, msg *store.Message, newLabel string, markHeard bool) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.messages[msg.ID]
	if !ok {
		return store.ErrNotFound
	}
	r.msg.Label = newLabel
	if markHeard {
		r.msg.Unheard = false
	}
	msg.Label = r.msg.Label
	msg.Unheard = r.msg.Unheard
	return nil
}

// SetUnheard sets the unheard flag.
func (s *Store) SetUnheard(_ context.Context, msg *store.Message, unheard bool) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.messages[msg.ID]
	if !ok {
		return store.ErrNotFound
	}
	r.msg.Unheard = unheard
	msg.Unheard = unheard
	return nil
}

// UpdateSubject rewrites the subject.
func (s *Store) UpdateSubject(_ context.Context, msg *store.Message, subject string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.messages[msg.ID]
	if !ok {
		return store.ErrNotFound
	}
	r.msg.Subject = subject
	msg.Subject = subject
	return nil
}

// Copy duplicates the record and every variant payload under a new identity.
func (s *Store) Copy(_ context.Context, msg *store.Message, dest store.Owner, newLabel, newMessageID, newSubject string) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.messages[msg.ID]
	if !ok {
		return nil, store.ErrNotFound
	}

	dup := src.msg
	dup.ID = uuid.New().String()
	dup.Owner = dest.Name
	dup.OwnerURI = dest.URI
	dup.Label = newLabel
	dup.MessageID = newMessageID
	dup.Subject = newSubject
	dup.Unheard = true
	dup.OtherRecipients = append([]string(nil), src.msg.OtherRecipients...)

	for _, b := range s.variants {
		if b.variant.VoicemailID != msg.ID {
			continue
		}
		v := b.variant
		v.ID = uuid.New().String()
		v.VoicemailID = dup.ID
		v.Filename = strings.Replace(b.variant.Filename, src.msg.MessageID, newMessageID, 1)
		s.variants[v.ID] = &blob{
			variant: v,
			payload: append([]byte(nil), b.payload...),
		}
	}

	s.messages[dup.ID] = &record{msg: dup}
	return copyMessage(&dup), nil
}

// RenameOwner rewrites the owner fields on every record matching oldOwner.
func (s *Store) RenameOwner(_ context.Context, newOwner store.Owner, oldOwner string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.messages {
		if r.msg.Owner == oldOwner {
			r.msg.Owner = newOwner.Name
			r.msg.OwnerURI = newOwner.URI
		}
	}
	return nil
}

// =============================================================================
// Deletes
// =============================================================================

// Delete removes the variant payloads, then the metadata record.
func (s *Store) Delete(_ context.Context, msg *store.Message) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(msg.ID)
	return nil
}

// DeleteVariant removes a single variant payload.
func (s *Store) DeleteVariant(_ context.Context, v *store.AudioVariant) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.variants, v.ID)
	return nil
}

// DeleteOwner removes every message owned by owner.
func (s *Store) DeleteOwner(_ context.Context, owner string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.messages {
		if r.msg.Owner == owner {
			s.deleteLocked(id)
		}
	}
	return nil
}

// Purge removes every message for owner under label.
func (s *Store) Purge(_ context.Context, owner, label string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.messages {
		if r.msg.Owner == owner && r.msg.Label == label {
			s.deleteLocked(id)
		}
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// findLocked locates a record by the (owner, label, messageId) triple.
// Caller holds at least the read lock.
func (s *Store) findLocked(owner, label, messageID string) *record {
	for _, r := range s.messages {
		if r.msg.Owner == owner && r.msg.Label == label && r.msg.MessageID == messageID {
			return r
		}
	}
	return nil
}

// deleteLocked removes a record and its variants. Caller holds the write lock.
func (s *Store) deleteLocked(id string) {
	for vid, b := range s.variants {
		if b.variant.VoicemailID == id {
			delete(s.variants, vid)
		}
	}
	delete(s.messages, id)
}

func buildMessage(owner store.Owner, label, messageID string, desc *store.MessageDescriptor, unheard bool) store.Message {
	priority := desc.Priority
	if priority == "" {
		priority = store.PriorityNormal
	}
	ts := desc.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return store.Message{
		ID:              uuid.New().String(),
		Owner:           owner.Name,
		OwnerURI:        owner.URI,
		Label:           label,
		MessageID:       messageID,
		Unheard:         unheard,
		FromURI:         desc.FromURI,
		Subject:         desc.Subject,
		Priority:        priority,
		Timestamp:       ts,
		OtherRecipients: append([]string(nil), desc.OtherRecipients...),
		AudioFormat:     desc.AudioFormat,
	}
}

func copyMessage(m *store.Message) *store.Message {
	out := *m
	out.OtherRecipients = append([]string(nil), m.OtherRecipients...)
	return &out
}

func copyVariant(v *store.AudioVariant) *store.AudioVariant {
	out := *v
	return &out
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)
