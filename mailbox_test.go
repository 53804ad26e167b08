package voicemail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/sipfoundry/voicemail/audio"
	"github.com/sipfoundry/voicemail/resolver"
	"github.com/sipfoundry/voicemail/store"
	"github.com/sipfoundry/voicemail/store/memory"
)

// notifyCounter records mailbox-changed notifications per user.
type notifyCounter struct {
	mu    sync.Mutex
	calls []string
}

func (n *notifyCounter) notifier() Notifier {
	return NotifierFunc(func(_ context.Context, details *MailboxDetails) error {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.calls = append(n.calls, details.User)
		return nil
	})
}

func (n *notifyCounter) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func (n *notifyCounter) countFor(user string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, u := range n.calls {
		if u == user {
			c++
		}
	}
	return c
}

func (n *notifyCounter) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = nil
}

func setupTestManager(t *testing.T, opts ...Option) (Manager, *notifyCounter) {
	t.Helper()

	counter := &notifyCounter{}
	opts = append([]Option{
		WithStore(memory.New()),
		WithNotifier(counter.notifier()),
	}, opts...)

	mgr, err := NewManager(opts...)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	ctx := context.Background()
	if err := mgr.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { mgr.Close(ctx) })

	return mgr, counter
}

// stage writes content to a scratch file and returns the staged recording.
func stage(t *testing.T, content string) *StagedRecording {
	t.Helper()
	rec, err := StageRecording(t.TempDir(), strings.NewReader(content))
	if err != nil {
		t.Fatalf("stage recording failed: %v", err)
	}
	return rec
}

func deposit(t *testing.T, mbx Mailbox, content string) *store.Message {
	t.Helper()
	msg, err := mbx.Deposit(context.Background(), stage(t, content))
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	return msg
}

func TestNewManager(t *testing.T) {
	t.Run("requires store", func(t *testing.T) {
		_, err := NewManager()
		if !errors.Is(err, ErrStoreRequired) {
			t.Errorf("expected ErrStoreRequired, got %v", err)
		}
	})

	t.Run("creates manager with store", func(t *testing.T) {
		mgr, err := NewManager(WithStore(memory.New()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if mgr == nil {
			t.Fatal("expected non-nil manager")
		}
		if mgr.IsConnected() {
			t.Error("manager should not be connected before Connect")
		}
	})
}

func TestManagerLifecycle(t *testing.T) {
	mgr, err := NewManager(WithStore(memory.New()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	if err := mgr.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if !mgr.IsConnected() {
		t.Error("expected connected state")
	}

	if err := mgr.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}

	if err := mgr.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := mgr.Close(ctx); err != nil {
		t.Errorf("second close should not error, got %v", err)
	}
}

func TestMailboxAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("operations fail when not connected", func(t *testing.T) {
		mgr, _ := NewManager(WithStore(memory.New()))
		mbx := mgr.Mailbox("201")
		if _, err := mbx.Message(ctx, "100000001"); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("invalid user is rejected", func(t *testing.T) {
		mgr, _ := setupTestManager(t)
		mbx := mgr.Mailbox("user:with:colons")
		if _, err := mbx.Messages(ctx, store.FolderInbox); !errors.Is(err, ErrInvalidUser) {
			t.Errorf("expected ErrInvalidUser, got %v", err)
		}
	})
}

func TestOwnerNamePinnedToUser(t *testing.T) {
	ctx := context.Background()
	mgr, _ := setupTestManager(t, WithAddressResolver(resolver.NewStatic(map[string]store.Owner{
		"201": {Name: "directory-alias", URI: "sip:alias@example.com"},
	})))
	mbx := mgr.Mailbox("201")

	msg := deposit(t, mbx, "audio")

	// The resolver's URI is persisted, but the record stays keyed on the
	// mailbox user so the deposit remains reachable through every read.
	found, err := mbx.Message(ctx, msg.MessageID)
	if err != nil {
		t.Fatalf("deposit not readable back: %v", err)
	}
	if found.Owner != "201" {
		t.Errorf("expected owner %q, got %q", "201", found.Owner)
	}
	if found.OwnerURI != "sip:alias@example.com" {
		t.Errorf("expected resolved uri, got %q", found.OwnerURI)
	}

	inbox, err := mbx.Messages(ctx, store.FolderInbox)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(inbox) != 1 {
		t.Errorf("expected 1 inbox message, got %d", len(inbox))
	}
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	mgr, counter := setupTestManager(t)
	mbx := mgr.Mailbox("201")

	payload := "RIFF fake wav payload"
	msg := deposit(t, mbx, payload)

	t.Run("message id allocated from sequence", func(t *testing.T) {
		if msg.MessageID != "100000001" {
			t.Errorf("expected first id 100000001, got %q", msg.MessageID)
		}
		second := deposit(t, mbx, payload)
		if second.MessageID != "100000002" {
			t.Errorf("expected second id 100000002, got %q", second.MessageID)
		}
	})

	t.Run("arrives unheard in inbox with default subject", func(t *testing.T) {
		if msg.Label != store.FolderInbox.ID() {
			t.Errorf("expected inbox label, got %q", msg.Label)
		}
		if !msg.Unheard {
			t.Error("expected unheard")
		}
		if msg.Subject != "Voice Message 100000001" {
			t.Errorf("unexpected subject %q", msg.Subject)
		}
	})

	t.Run("audio roundtrips", func(t *testing.T) {
		rc, v, err := mbx.Audio(ctx, msg.MessageID)
		if err != nil {
			t.Fatalf("audio failed: %v", err)
		}
		defer rc.Close()
		got, _ := io.ReadAll(rc)
		if string(got) != payload {
			t.Errorf("payload mismatch: %q", got)
		}
		if v.Kind != store.KindCurrent {
			t.Errorf("expected CURRENT variant, got %v", v.Kind)
		}
		if v.ContentLength != int64(len(payload)) {
			t.Errorf("expected content length %d, got %d", len(payload), v.ContentLength)
		}
	})

	t.Run("notification fired per deposit", func(t *testing.T) {
		if got := counter.countFor("201"); got != 2 {
			t.Errorf("expected 2 notifications, got %d", got)
		}
	})

	t.Run("scratch file consumed", func(t *testing.T) {
		rec := stage(t, payload)
		if _, err := mbx.Deposit(ctx, rec); err != nil {
			t.Fatalf("deposit failed: %v", err)
		}
		if _, err := os.Stat(rec.Path); !os.IsNotExist(err) {
			t.Errorf("expected scratch file removed, stat returned %v", err)
		}
	})

	t.Run("discarded recording is rejected", func(t *testing.T) {
		rec := stage(t, payload)
		rec.Discard()
		if _, err := mbx.Deposit(ctx, rec); !errors.Is(err, ErrRecordingRequired) {
			t.Errorf("expected ErrRecordingRequired, got %v", err)
		}
	})
}

func TestDepositToConference(t *testing.T) {
	ctx := context.Background()
	mgr, counter := setupTestManager(t)
	mbx := mgr.Mailbox("201")

	msg, err := mbx.DepositTo(ctx, store.FolderConference, stage(t, "conference audio"))
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if msg.Label != store.FolderConference.ID() {
		t.Errorf("expected conference label, got %q", msg.Label)
	}
	if counter.count() != 0 {
		t.Errorf("conference deposit should not notify, got %d", counter.count())
	}
}

func TestSave(t *testing.T) {
	ctx := context.Background()
	mgr, counter := setupTestManager(t)
	mbx := mgr.Mailbox("201")

	msg := deposit(t, mbx, "audio")
	counter.reset()

	t.Run("inbox to saved notifies and marks heard", func(t *testing.T) {
		if err := mbx.Save(ctx, msg.MessageID); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		saved, err := mbx.Message(ctx, msg.MessageID)
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if saved.Label != store.FolderSaved.ID() {
			t.Errorf("expected saved, got %q", saved.Label)
		}
		if saved.Unheard {
			t.Error("save from inbox should mark heard")
		}
		if counter.count() != 1 {
			t.Errorf("expected 1 notification, got %d", counter.count())
		}
	})

	t.Run("saved is a no-op", func(t *testing.T) {
		counter.reset()
		if err := mbx.Save(ctx, msg.MessageID); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		if counter.count() != 0 {
			t.Errorf("expected no notification, got %d", counter.count())
		}
	})

	t.Run("deleted back to inbox notifies", func(t *testing.T) {
		if err := mbx.Delete(ctx, msg.MessageID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		counter.reset()
		if err := mbx.Save(ctx, msg.MessageID); err != nil {
			t.Fatalf("undelete failed: %v", err)
		}
		restored, err := mbx.Message(ctx, msg.MessageID)
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if restored.Label != store.FolderInbox.ID() {
			t.Errorf("expected inbox, got %q", restored.Label)
		}
		if counter.count() != 1 {
			t.Errorf("expected 1 notification, got %d", counter.count())
		}
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	mgr, counter := setupTestManager(t)
	mbx := mgr.Mailbox("201")

	t.Run("inbox to deleted notifies and marks heard", func(t *testing.T) {
		msg := deposit(t, mbx, "audio")
		counter.reset()
		if err := mbx.Delete(ctx, msg.MessageID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		deleted, err := mbx.Message(ctx, msg.MessageID)
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if deleted.Label != store.FolderDeleted.ID() || deleted.Unheard {
			t.Errorf("unexpected state label=%q unheard=%v", deleted.Label, deleted.Unheard)
		}
		if counter.count() != 1 {
			t.Errorf("expected 1 notification, got %d", counter.count())
		}
	})

	t.Run("saved to deleted does not notify", func(t *testing.T) {
		msg := deposit(t, mbx, "audio")
		if err := mbx.Save(ctx, msg.MessageID); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		counter.reset()
		if err := mbx.Delete(ctx, msg.MessageID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if counter.count() != 0 {
			t.Errorf("expected no notification, got %d", counter.count())
		}
	})

	t.Run("deleted is purged permanently", func(t *testing.T) {
		msg := deposit(t, mbx, "audio")
		if err := mbx.Delete(ctx, msg.MessageID); err != nil {
			t.Fatalf("first delete failed: %v", err)
		}
		counter.reset()
		if err := mbx.Delete(ctx, msg.MessageID); err != nil {
			t.Fatalf("second delete failed: %v", err)
		}
		if _, err := mbx.Message(ctx, msg.MessageID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after purge, got %v", err)
		}
		if _, _, err := mbx.Audio(ctx, msg.MessageID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected audio gone after purge, got %v", err)
		}
		if counter.count() != 0 {
			t.Errorf("purge should not fire mailbox-changed, got %d", counter.count())
		}
	})
}

func TestMarkHeardUnheard(t *testing.T) {
	ctx := context.Background()
	mgr, counter := setupTestManager(t)
	mbx := mgr.Mailbox("201")

	msg := deposit(t, mbx, "audio")
	counter.reset()

	if err := mbx.MarkHeard(ctx, msg.MessageID); err != nil {
		t.Fatalf("mark heard failed: %v", err)
	}
	if counter.count() != 1 {
		t.Errorf("expected 1 notification, got %d", counter.count())
	}

	unheard, err := mbx.IsUnheard(ctx, msg.MessageID)
	if err != nil {
		t.Fatalf("is unheard failed: %v", err)
	}
	if unheard {
		t.Error("expected heard")
	}

	// Marking an already-heard message heard again changes nothing.
	if err := mbx.MarkHeard(ctx, msg.MessageID); err != nil {
		t.Fatalf("mark heard failed: %v", err)
	}
	if counter.count() != 1 {
		t.Errorf("no-op mark should not notify, got %d", counter.count())
	}

	if err := mbx.MarkUnheard(ctx, msg.MessageID); err != nil {
		t.Fatalf("mark unheard failed: %v", err)
	}
	if counter.count() != 2 {
		t.Errorf("expected 2 notifications, got %d", counter.count())
	}
}

func TestMoveToFolder(t *testing.T) {
	ctx := context.Background()
	mgr, counter := setupTestManager(t)
	mbx := mgr.Mailbox("201")

	msg := deposit(t, mbx, "audio")
	counter.reset()

	// Arbitrary labels pass through unvalidated.
	if err := mbx.MoveToFolder(ctx, msg.MessageID, "archive-2009"); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if counter.count() != 0 {
		t.Errorf("move should not notify, got %d", counter.count())
	}

	moved, err := mbx.Message(ctx, msg.MessageID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if moved.Label != "archive-2009" {
		t.Errorf("expected label stored as given, got %q", moved.Label)
	}

	// The state machine rejects messages outside the folder set.
	if err := mbx.Save(ctx, msg.MessageID); !errors.Is(err, ErrInvalidFolder) {
		t.Errorf("expected ErrInvalidFolder, got %v", err)
	}
}

func TestUpdateSubject(t *testing.T) {
	ctx := context.Background()
	mgr, counter := setupTestManager(t)
	mbx := mgr.Mailbox("201")

	msg := deposit(t, mbx, "audio")
	counter.reset()

	if err := mbx.UpdateSubject(ctx, msg.MessageID, "Message from reception"); err != nil {
		t.Fatalf("update subject failed: %v", err)
	}
	if counter.count() != 0 {
		t.Errorf("subject update should not notify, got %d", counter.count())
	}

	updated, _ := mbx.Message(ctx, msg.MessageID)
	if updated.Subject != "Message from reception" {
		t.Errorf("unexpected subject %q", updated.Subject)
	}
}

func TestEmptyDeleted(t *testing.T) {
	ctx := context.Background()
	mgr, _ := setupTestManager(t)
	mbx := mgr.Mailbox("201")

	doomed := deposit(t, mbx, "audio")
	kept := deposit(t, mbx, "audio")
	if err := mbx.Delete(ctx, doomed.MessageID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if err := mbx.EmptyDeleted(ctx); err != nil {
		t.Fatalf("empty deleted failed: %v", err)
	}

	if _, err := mbx.Message(ctx, doomed.MessageID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected deleted message purged, got %v", err)
	}
	if _, err := mbx.Message(ctx, kept.MessageID); err != nil {
		t.Errorf("inbox message should survive, got %v", err)
	}
}

func TestDetails(t *testing.T) {
	ctx := context.Background()
	mgr, _ := setupTestManager(t)
	mbx := mgr.Mailbox("201")

	first := deposit(t, mbx, "audio")
	deposit(t, mbx, "audio")
	if err := mbx.MarkHeard(ctx, first.MessageID); err != nil {
		t.Fatalf("mark heard failed: %v", err)
	}

	details, err := mbx.Details(ctx)
	if err != nil {
		t.Fatalf("details failed: %v", err)
	}
	if details.InboxCount() != 2 {
		t.Errorf("expected 2 inbox messages, got %d", details.InboxCount())
	}
	if details.UnheardCount() != 1 {
		t.Errorf("expected 1 unheard, got %d", details.UnheardCount())
	}
	if details.HeardCount() != 1 {
		t.Errorf("expected 1 heard, got %d", details.HeardCount())
	}

	unheard, err := mbx.UnheardMessages(ctx)
	if err != nil {
		t.Fatalf("unheard messages failed: %v", err)
	}
	if len(unheard) != 1 {
		t.Errorf("expected 1 unheard message, got %d", len(unheard))
	}
}

func TestCopyTo(t *testing.T) {
	ctx := context.Background()
	mgr, counter := setupTestManager(t)
	src := mgr.Mailbox("201")
	dest := mgr.Mailbox("202")

	msg := deposit(t, src, "audio payload")
	if err := src.MarkHeard(ctx, msg.MessageID); err != nil {
		t.Fatalf("mark heard failed: %v", err)
	}
	counter.reset()

	copied, err := src.CopyTo(ctx, "202", msg.MessageID)
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}

	if copied.MessageID == msg.MessageID {
		t.Error("copy should get a fresh message id")
	}
	if !copied.Unheard {
		t.Error("copy should arrive unheard")
	}
	if copied.Subject != "Voice Message "+copied.MessageID {
		t.Errorf("expected fresh default subject, got %q", copied.Subject)
	}
	if counter.countFor("202") != 1 {
		t.Errorf("expected destination notified once, got %d", counter.countFor("202"))
	}

	rc, _, err := dest.Audio(ctx, copied.MessageID)
	if err != nil {
		t.Fatalf("audio failed: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "audio payload" {
		t.Errorf("copied payload mismatch: %q", got)
	}
}

func TestRenameAndDeleteMailbox(t *testing.T) {
	ctx := context.Background()
	mgr, _ := setupTestManager(t)
	mbx := mgr.Mailbox("201")

	msg := deposit(t, mbx, "audio")

	if err := mgr.RenameMailbox(ctx, "301", "201"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	renamed := mgr.Mailbox("301")
	if _, err := renamed.Message(ctx, msg.MessageID); err != nil {
		t.Errorf("expected message under new user, got %v", err)
	}
	if _, err := mbx.Message(ctx, msg.MessageID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected nothing under old user, got %v", err)
	}

	if err := mgr.DeleteMailbox(ctx, "301"); err != nil {
		t.Fatalf("delete mailbox failed: %v", err)
	}
	if _, err := renamed.Message(ctx, msg.MessageID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected mailbox wiped, got %v", err)
	}
}

func TestForward(t *testing.T) {
	ctx := context.Background()

	// Concatenates the two inputs byte-for-byte.
	concat := func(_ context.Context, outputPath, firstPath, secondPath string) error {
		first, err := os.ReadFile(firstPath)
		if err != nil {
			return err
		}
		second, err := os.ReadFile(secondPath)
		if err != nil {
			return err
		}
		return os.WriteFile(outputPath, append(first, second...), 0o600)
	}

	t.Run("without comment combined is byte-identical", func(t *testing.T) {
		mgr, counter := setupTestManager(t)
		src := mgr.Mailbox("201")
		dest := mgr.Mailbox("202")

		payload := "0123456789"
		msg := deposit(t, src, payload)
		counter.reset()

		fwd, err := dest.Forward(ctx, ForwardRequest{
			SourceUser:      "201",
			SourceMessageID: msg.MessageID,
			FromURI:         "sip:201@example.com",
		})
		if err != nil {
			t.Fatalf("forward failed: %v", err)
		}

		if !fwd.Unheard || fwd.Label != store.FolderInbox.ID() {
			t.Errorf("unexpected state label=%q unheard=%v", fwd.Label, fwd.Unheard)
		}
		if counter.countFor("202") != 1 {
			t.Errorf("expected destination notified once, got %d", counter.countFor("202"))
		}

		rc, v, err := dest.Audio(ctx, fwd.MessageID)
		if err != nil {
			t.Fatalf("audio failed: %v", err)
		}
		defer rc.Close()
		if v.Kind != store.KindCombined {
			t.Errorf("expected COMBINED preferred for playback, got %v", v.Kind)
		}
		got, _ := io.ReadAll(rc)
		if !bytes.Equal(got, []byte(payload)) {
			t.Errorf("combined should be byte-identical to source, got %q", got)
		}
	})

	t.Run("with comment combined is concatenation", func(t *testing.T) {
		mgr, _ := setupTestManager(t, WithConcatenator(audio.ConcatFunc(concat)))
		src := mgr.Mailbox("201")
		dest := mgr.Mailbox("202")

		msg := deposit(t, src, "forwarded audio")
		comment := stage(t, " plus comment")

		fwd, err := dest.Forward(ctx, ForwardRequest{
			SourceUser:      "201",
			SourceMessageID: msg.MessageID,
			Comment:         comment,
		})
		if err != nil {
			t.Fatalf("forward failed: %v", err)
		}

		rc, _, err := dest.Audio(ctx, fwd.MessageID)
		if err != nil {
			t.Fatalf("audio failed: %v", err)
		}
		defer rc.Close()
		got, _ := io.ReadAll(rc)
		if string(got) != "forwarded audio plus comment" {
			t.Errorf("unexpected combined audio %q", got)
		}

		if _, err := os.Stat(comment.Path); !os.IsNotExist(err) {
			t.Errorf("expected comment scratch file removed, stat returned %v", err)
		}

		fwdMsg, err := dest.Message(ctx, fwd.MessageID)
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		current, err := managerStore(mgr).VariantByKind(ctx, fwdMsg, store.KindCurrent)
		if err != nil {
			t.Fatalf("find comment variant: %v", err)
		}
		crc, err := managerStore(mgr).OpenVariant(ctx, current)
		if err != nil {
			t.Fatalf("open comment variant: %v", err)
		}
		defer crc.Close()
		cgot, _ := io.ReadAll(crc)
		if string(cgot) != " plus comment" {
			t.Errorf("current variant should hold the bare comment, got %q", cgot)
		}
	})

	t.Run("no comment means no current variant", func(t *testing.T) {
		mgr, _ := setupTestManager(t)
		src := mgr.Mailbox("201")
		dest := mgr.Mailbox("202")

		msg := deposit(t, src, "audio")
		fwd, err := dest.Forward(ctx, ForwardRequest{
			SourceUser:      "201",
			SourceMessageID: msg.MessageID,
		})
		if err != nil {
			t.Fatalf("forward failed: %v", err)
		}

		fwdMsg, err := dest.Message(ctx, fwd.MessageID)
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if _, err := managerStore(mgr).VariantByKind(ctx, fwdMsg, store.KindCurrent); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected no CURRENT variant, got %v", err)
		}
		variants, err := managerStore(mgr).Variants(ctx, fwdMsg)
		if err != nil {
			t.Fatalf("list variants: %v", err)
		}
		if len(variants) != 2 {
			t.Errorf("expected ORIGINAL and COMBINED only, got %d variants", len(variants))
		}
	})

	t.Run("original variant preserved verbatim", func(t *testing.T) {
		mgr, _ := setupTestManager(t, WithConcatenator(audio.ConcatFunc(concat)))
		src := mgr.Mailbox("201")
		dest := mgr.Mailbox("202")

		msg := deposit(t, src, "source audio")
		fwd, err := dest.Forward(ctx, ForwardRequest{
			SourceUser:      "201",
			SourceMessageID: msg.MessageID,
			Comment:         stage(t, " comment"),
		})
		if err != nil {
			t.Fatalf("forward failed: %v", err)
		}

		fwdMsg, err := dest.Message(ctx, fwd.MessageID)
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		original, err := managerStore(mgr).VariantByKind(ctx, fwdMsg, store.KindOriginal)
		if err != nil {
			t.Fatalf("find original variant: %v", err)
		}
		rc, err := managerStore(mgr).OpenVariant(ctx, original)
		if err != nil {
			t.Fatalf("open original: %v", err)
		}
		defer rc.Close()
		got, _ := io.ReadAll(rc)
		if string(got) != "source audio" {
			t.Errorf("original should be verbatim source, got %q", got)
		}
	})

	t.Run("comment without concatenator is rejected", func(t *testing.T) {
		mgr, _ := setupTestManager(t)
		src := mgr.Mailbox("201")
		dest := mgr.Mailbox("202")

		msg := deposit(t, src, "audio")
		comment := stage(t, "comment")

		_, err := dest.Forward(ctx, ForwardRequest{
			SourceUser:      "201",
			SourceMessageID: msg.MessageID,
			Comment:         comment,
		})
		if !errors.Is(err, ErrConcatenatorRequired) {
			t.Errorf("expected ErrConcatenatorRequired, got %v", err)
		}
		if _, err := os.Stat(comment.Path); !os.IsNotExist(err) {
			t.Errorf("comment should be consumed even on rejection, stat returned %v", err)
		}
	})

	t.Run("concat failure aborts with no destination message", func(t *testing.T) {
		failing := func(_ context.Context, _, _, _ string) error {
			return errors.New("sox exited 1")
		}
		mgr, counter := setupTestManager(t, WithConcatenator(audio.ConcatFunc(failing)))
		src := mgr.Mailbox("201")
		dest := mgr.Mailbox("202")

		msg := deposit(t, src, "audio")
		counter.reset()
		comment := stage(t, "comment")

		_, err := dest.Forward(ctx, ForwardRequest{
			SourceUser:      "201",
			SourceMessageID: msg.MessageID,
			Comment:         comment,
		})
		if err == nil {
			t.Fatal("expected forward to fail")
		}

		inbox, err := dest.Messages(ctx, store.FolderInbox)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(inbox) != 0 {
			t.Errorf("expected no partial destination message, got %d", len(inbox))
		}
		if counter.countFor("202") != 0 {
			t.Errorf("failed forward should not notify, got %d", counter.countFor("202"))
		}
		if _, err := os.Stat(comment.Path); !os.IsNotExist(err) {
			t.Errorf("expected comment scratch file removed, stat returned %v", err)
		}
	})

	t.Run("source without audio is rejected", func(t *testing.T) {
		mgr, _ := setupTestManager(t)
		dest := mgr.Mailbox("202")

		_, err := dest.Forward(ctx, ForwardRequest{
			SourceUser:      "201",
			SourceMessageID: "100009999",
		})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("forward of a forward uses combined audio", func(t *testing.T) {
		mgr, _ := setupTestManager(t, WithConcatenator(audio.ConcatFunc(concat)))
		a := mgr.Mailbox("201")
		b := mgr.Mailbox("202")
		c := mgr.Mailbox("203")

		msg := deposit(t, a, "base")
		first, err := b.Forward(ctx, ForwardRequest{
			SourceUser:      "201",
			SourceMessageID: msg.MessageID,
			Comment:         stage(t, "+one"),
		})
		if err != nil {
			t.Fatalf("first forward failed: %v", err)
		}

		second, err := c.Forward(ctx, ForwardRequest{
			SourceUser:      "202",
			SourceMessageID: first.MessageID,
			Comment:         stage(t, "+two"),
		})
		if err != nil {
			t.Fatalf("second forward failed: %v", err)
		}

		rc, _, err := c.Audio(ctx, second.MessageID)
		if err != nil {
			t.Fatalf("audio failed: %v", err)
		}
		defer rc.Close()
		got, _ := io.ReadAll(rc)
		if string(got) != "base+one+two" {
			t.Errorf("expected chained combined audio, got %q", got)
		}
	})
}

// managerStore exposes the backing store for variant-level assertions.
func managerStore(mgr Manager) store.Store {
	return mgr.(*manager).store
}
