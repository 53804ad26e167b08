package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sipfoundry/voicemail/store"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	return s
}

func testDescriptor(ownerURI string) *store.MessageDescriptor {
	return &store.MessageDescriptor{
		ID:          ownerURI,
		FromURI:     "sip:caller@example.com",
		Subject:     "Voice Message 100000001",
		Priority:    store.PriorityNormal,
		Duration:    5,
		AudioFormat: "wav",
	}
}

func depositTestMessage(t *testing.T, s *Store, owner store.Owner, label, messageID string, payload []byte) *store.Message {
	t.Helper()
	ctx := context.Background()

	filename := store.KindCurrent.Filename(messageID, "wav")
	_, err := s.StoreVariant(ctx, bytes.NewReader(payload), filename, store.KindCurrent,
		label, messageID, owner, testDescriptor(owner.URI), true)
	if err != nil {
		t.Fatalf("store variant failed: %v", err)
	}

	msg, err := s.FindInLabel(ctx, owner.Name, label, messageID)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	return msg
}

func TestStoreVariantRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	owner := store.Owner{Name: "201", URI: "sip:201@example.com"}

	payload := []byte("RIFF fake wav payload")
	msg := depositTestMessage(t, s, owner, "inbox", "100000001", payload)

	if !msg.Unheard {
		t.Error("expected deposited message to be unheard")
	}

	variants, err := s.Variants(ctx, msg)
	if err != nil {
		t.Fatalf("variants failed: %v", err)
	}
	if len(variants) != 1 {
		t.Fatalf("expected 1 variant, got %d", len(variants))
	}
	if variants[0].ContentLength != int64(len(payload)) {
		t.Errorf("expected content length %d, got %d", len(payload), variants[0].ContentLength)
	}

	rc, err := s.OpenVariant(ctx, variants[0])
	if err != nil {
		t.Fatalf("open variant failed: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read variant failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: got %q, want %q", got, payload)
	}
}

func TestStoreVariantFailedReadPersistsNothing(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	owner := store.Owner{Name: "201", URI: "sip:201@example.com"}

	failing := io.MultiReader(strings.NewReader("partial"), &failingReader{})
	_, err := s.StoreVariant(ctx, failing, "100000001-00.wav", store.KindCurrent,
		"inbox", "100000001", owner, testDescriptor(owner.URI), true)
	if err == nil {
		t.Fatal("expected error from failing reader")
	}

	if _, err := s.FindInLabel(ctx, "201", "inbox", "100000001"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after failed write, got %v", err)
	}
}

type failingReader struct{}

func (r *failingReader) Read([]byte) (int, error) {
	return 0, errors.New("stream truncated")
}

func TestSecondVariantReusesRecord(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	owner := store.Owner{Name: "201", URI: "sip:201@example.com"}

	msg := depositTestMessage(t, s, owner, "inbox", "100000001", []byte("original"))

	_, err := s.StoreVariant(ctx, strings.NewReader("combined"), "100000001-FW.wav", store.KindCombined,
		"inbox", "100000001", owner, testDescriptor(owner.URI), true)
	if err != nil {
		t.Fatalf("store second variant failed: %v", err)
	}

	variants, err := s.Variants(ctx, msg)
	if err != nil {
		t.Fatalf("variants failed: %v", err)
	}
	if len(variants) != 2 {
		t.Errorf("expected 2 variants on one record, got %d", len(variants))
	}

	ids, err := s.FindMessageIDs(ctx, "201", "inbox", false)
	if err != nil {
		t.Fatalf("find ids failed: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("expected a single metadata record, got %d", len(ids))
	}
}

func TestSequence(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	key := store.CounterKey(102)
	if key != "0102MSGID" {
		t.Fatalf("unexpected counter key %q", key)
	}

	var prev int64
	for i := 0; i < 10; i++ {
		seq, err := s.NextSequence(ctx, key)
		if err != nil {
			t.Fatalf("next sequence failed: %v", err)
		}
		if seq <= prev {
			t.Fatalf("sequence not strictly increasing: %d after %d", seq, prev)
		}
		prev = seq
	}

	cur, err := s.CurrentSequence(ctx, key)
	if err != nil {
		t.Fatalf("current sequence failed: %v", err)
	}
	if cur != prev {
		t.Errorf("expected current %d, got %d", prev, cur)
	}

	if cur, _ := s.CurrentSequence(ctx, store.CounterKey(999)); cur != 0 {
		t.Errorf("untouched counter should read 0, got %d", cur)
	}
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	owner := store.Owner{Name: "201", URI: "sip:201@example.com"}

	msg := depositTestMessage(t, s, owner, "inbox", "100000001", []byte("audio"))

	if err := s.Move(ctx, msg, "saved", true); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if msg.Label != "saved" || msg.Unheard {
		t.Errorf("expected caller's message updated in place, got label=%q unheard=%v", msg.Label, msg.Unheard)
	}

	moved, err := s.FindInLabel(ctx, "201", "saved", "100000001")
	if err != nil {
		t.Fatalf("find moved failed: %v", err)
	}
	if moved.Unheard {
		t.Error("expected markHeard move to clear unheard")
	}
	if _, err := s.FindInLabel(ctx, "201", "inbox", "100000001"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected message gone from inbox, got %v", err)
	}
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	src := store.Owner{Name: "201", URI: "sip:201@example.com"}
	dest := store.Owner{Name: "202", URI: "sip:202@example.com"}

	msg := depositTestMessage(t, s, src, "saved", "100000001", []byte("audio payload"))
	if err := s.SetUnheard(ctx, msg, false); err != nil {
		t.Fatalf("set unheard failed: %v", err)
	}

	copied, err := s.Copy(ctx, msg, dest, "inbox", "100000009", "Voice Message 100000009")
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}

	if copied.Owner != "202" || copied.Label != "inbox" || copied.MessageID != "100000009" {
		t.Errorf("unexpected copy identity: %+v", copied)
	}
	if !copied.Unheard {
		t.Error("copy should arrive unheard regardless of source state")
	}

	variants, err := s.Variants(ctx, copied)
	if err != nil {
		t.Fatalf("variants failed: %v", err)
	}
	if len(variants) != 1 {
		t.Fatalf("expected 1 copied variant, got %d", len(variants))
	}
	if want := "100000009-00.wav"; variants[0].Filename != want {
		t.Errorf("expected rewritten filename %q, got %q", want, variants[0].Filename)
	}

	rc, err := s.OpenVariant(ctx, variants[0])
	if err != nil {
		t.Fatalf("open copied variant failed: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "audio payload" {
		t.Errorf("copied payload mismatch: %q", got)
	}

	// Source is untouched.
	if _, err := s.FindInLabel(ctx, "201", "saved", "100000001"); err != nil {
		t.Errorf("source should be untouched, got %v", err)
	}
}

func TestDeleteAndPurge(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	owner := store.Owner{Name: "201", URI: "sip:201@example.com"}

	msg := depositTestMessage(t, s, owner, "deleted", "100000001", []byte("audio"))
	keep := depositTestMessage(t, s, owner, "inbox", "100000002", []byte("audio"))
	variants, _ := s.Variants(ctx, msg)

	if err := s.Purge(ctx, "201", "deleted"); err != nil {
		t.Fatalf("purge failed: %v", err)
	}

	if _, err := s.FindByMessageID(ctx, "201", "100000001"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected purged message unfindable, got %v", err)
	}
	for _, v := range variants {
		if _, err := s.OpenVariant(ctx, v); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected purged payload gone, got %v", err)
		}
	}
	if _, err := s.FindByMessageID(ctx, "201", "100000002"); err != nil {
		t.Errorf("inbox message should survive purge of deleted, got %v", err)
	}

	if err := s.DeleteOwner(ctx, "201"); err != nil {
		t.Fatalf("delete owner failed: %v", err)
	}
	if _, err := s.FindByMessageID(ctx, "201", keep.MessageID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected mailbox wiped, got %v", err)
	}
}

func TestRenameOwner(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	owner := store.Owner{Name: "201", URI: "sip:201@example.com"}

	depositTestMessage(t, s, owner, "inbox", "100000001", []byte("audio"))

	newOwner := store.Owner{Name: "301", URI: "sip:301@example.com"}
	if err := s.RenameOwner(ctx, newOwner, "201"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	msg, err := s.FindByMessageID(ctx, "301", "100000001")
	if err != nil {
		t.Fatalf("expected message under new owner, got %v", err)
	}
	if msg.OwnerURI != "sip:301@example.com" {
		t.Errorf("expected owner URI rewritten, got %q", msg.OwnerURI)
	}
	if _, err := s.FindByMessageID(ctx, "201", "100000001"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected nothing left under old owner, got %v", err)
	}
}

func TestNotConnected(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.FindByLabel(ctx, "201", "inbox", false); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if _, err := s.NextSequence(ctx, "0001MSGID"); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
