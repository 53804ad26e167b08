package store

import (
	"testing"
	"time"
)

func testDescriptor() *MessageDescriptor {
	return &MessageDescriptor{
		ID:              "sip:202@example.com",
		FromURI:         "sip:201@example.com",
		Subject:         "Voice Message 100000001",
		Timestamp:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Priority:        PriorityNormal,
		OtherRecipients: []string{"sip:203@example.com"},
		Duration:        7,
		FilePath:        "/tmp/src.wav",
		AudioFormat:     "wav",
		ContentLength:   1024,
	}
}

func TestDescriptorWithMedia(t *testing.T) {
	base := testDescriptor()
	media := &MessageDescriptor{
		Duration:      3,
		FilePath:      "/tmp/comment.wav",
		AudioFormat:   "mp3",
		ContentLength: 256,
	}

	got := base.WithMedia(media)
	if got == base {
		t.Fatal("expected a copy, got the receiver")
	}
	if got.Duration != 3 || got.FilePath != "/tmp/comment.wav" ||
		got.AudioFormat != "mp3" || got.ContentLength != 256 {
		t.Errorf("media attributes not replaced: %+v", got)
	}
	if got.FromURI != base.FromURI || got.Subject != base.Subject {
		t.Errorf("delivery attributes should be preserved: %+v", got)
	}

	// The recipients slice must not alias the receiver's.
	got.OtherRecipients[0] = "sip:999@example.com"
	if base.OtherRecipients[0] != "sip:203@example.com" {
		t.Error("copy aliases the receiver's recipients slice")
	}
}

func TestDescriptorWithContentLength(t *testing.T) {
	base := testDescriptor()

	got := base.WithContentLength(4096)
	if got == base {
		t.Fatal("expected a copy, got the receiver")
	}
	if got.ContentLength != 4096 {
		t.Errorf("expected content length 4096, got %d", got.ContentLength)
	}
	if base.ContentLength != 1024 {
		t.Errorf("receiver mutated: %d", base.ContentLength)
	}
	if got.Duration != base.Duration || got.FilePath != base.FilePath {
		t.Errorf("media attributes should be preserved: %+v", got)
	}
}
