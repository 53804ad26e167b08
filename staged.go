package voicemail

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sipfoundry/voicemail/store"
)

// StagedRecording is a locally recorded or uploaded audio payload awaiting
// commit: it exists only until deposited into the store or discarded. The
// scratch file is removed on every exit path of the committing operation,
// success or failure.
type StagedRecording struct {
	// Path is the scratch file holding the audio payload.
	Path string

	// Duration of the audio in whole seconds.
	Duration int64

	// FromURI identifies the party that left the recording.
	FromURI string

	Subject   string
	Priority  store.Priority
	Timestamp time.Time

	// OtherRecipients lists additional destinations the same recording was
	// sent to.
	OtherRecipients []string

	discarded bool
}

// StageRecording writes content to a new scratch file under dir (the
// system temp directory if dir is empty) and returns a StagedRecording
// wrapping it. The caller fills in the delivery fields before committing.
func StageRecording(dir string, content io.Reader) (*StagedRecording, error) {
	f, err := os.CreateTemp(dir, "recording-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close scratch file: %w", err)
	}
	return &StagedRecording{
		Path:      f.Name(),
		Timestamp: time.Now().UTC(),
	}, nil
}

// Open returns a reader over the staged payload.
func (r *StagedRecording) Open() (io.ReadCloser, error) {
	if r.discarded {
		return nil, ErrRecordingRequired
	}
	return os.Open(r.Path)
}

// ContentLength returns the size of the staged payload in bytes.
func (r *StagedRecording) ContentLength() (int64, error) {
	if r.discarded {
		return 0, ErrRecordingRequired
	}
	info, err := os.Stat(r.Path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Discard removes the scratch file. Idempotent; a missing file is not an
// error.
func (r *StagedRecording) Discard() error {
	if r.discarded {
		return nil
	}
	r.discarded = true
	if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// valid reports whether the recording can still be committed.
func (r *StagedRecording) valid() bool {
	return r != nil && !r.discarded && r.Path != ""
}

// descriptor builds the message submission descriptor for this recording.
func (r *StagedRecording) descriptor(ownerURI, subject, audioFormat string, contentLength int64) *store.MessageDescriptor {
	priority := r.Priority
	if priority == "" {
		priority = store.PriorityNormal
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &store.MessageDescriptor{
		ID:              ownerURI,
		FromURI:         r.FromURI,
		Subject:         subject,
		Timestamp:       ts,
		Priority:        priority,
		OtherRecipients: append([]string(nil), r.OtherRecipients...),
		Duration:        r.Duration,
		FilePath:        r.Path,
		AudioFormat:     audioFormat,
		ContentLength:   contentLength,
	}
}
