package voicemail

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sipfoundry/voicemail/store"
	"go.opentelemetry.io/otel/attribute"
)

// ForwardRequest describes a forward into a destination mailbox.
type ForwardRequest struct {
	// SourceUser owns the message being forwarded.
	SourceUser string
	// SourceMessageID identifies the message being forwarded.
	SourceMessageID string

	// Comment is an optional recorded comment merged with the forwarded
	// audio. It is consumed: its scratch file is removed whether
	// or not the forward succeeds.
	Comment *StagedRecording

	// FromURI identifies the forwarding party.
	FromURI string

	Subject         string
	Priority        store.Priority
	Timestamp       time.Time
	OtherRecipients []string
}

// Forward composes a copy of a message into this mailbox's inbox under a
// freshly allocated message id.
//
// The ORIGINAL variant is a verbatim copy of the source's preferred
// variant, selected by explicit preference with COMBINED before CURRENT.
// The COMBINED variant is the concatenation of the preferred source
// audio and the comment when a comment is present, or a byte-identical
// copy of the preferred source audio when it is not. A comment is
// additionally kept on its own as the CURRENT variant.
//
// All fallible composition happens before anything is written for the
// destination: a concatenation failure aborts the forward entirely with no
// partial destination message. Scratch files are removed on every exit
// path.
func (m *userMailbox) Forward(ctx context.Context, req ForwardRequest) (*store.Message, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	if req.Comment != nil {
		defer func() {
			if err := req.Comment.Discard(); err != nil {
				m.manager.logger.Warn("failed to remove comment scratch file",
					"error", err, "path", req.Comment.Path)
			}
		}()
		if !req.Comment.valid() {
			return nil, ErrRecordingRequired
		}
		if m.manager.opts.concatenator == nil {
			return nil, ErrConcatenatorRequired
		}
	}

	ctx, endSpan := m.manager.otel.startSpan(ctx, "voicemail.forward",
		attribute.String("user", m.user),
		attribute.String("source_user", req.SourceUser),
		attribute.String("source_message_id", req.SourceMessageID),
	)
	start := time.Now()
	var fwdErr error
	defer func() {
		endSpan(fwdErr)
		m.manager.otel.recordForward(ctx, time.Since(start), req.Comment != nil, fwdErr)
	}()

	if err := m.manager.depositSem.Acquire(ctx, 1); err != nil {
		fwdErr = err
		return nil, fwdErr
	}
	defer m.manager.depositSem.Release(1)

	msg, err := m.forward(ctx, req)
	fwdErr = err
	return msg, err
}

func (m *userMailbox) forward(ctx context.Context, req ForwardRequest) (*store.Message, error) {
	src, err := m.manager.store.FindByMessageID(ctx, req.SourceUser, req.SourceMessageID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find source message: %w", err)
	}

	variants, err := m.manager.store.Variants(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("find source variants: %w", err)
	}
	// Explicit preference: a previously forwarded message contributes its
	// combined audio, not the bare current recording.
	preferred := store.SelectVariant(variants, store.KindCombined, store.KindCurrent)
	if preferred == nil {
		return nil, ErrNoAudio
	}

	// Materialize the preferred source audio to a scratch file. It is read
	// twice on the no-comment path and feeds the concatenator otherwise.
	srcPath, err := m.materializeVariant(ctx, preferred)
	if err != nil {
		return nil, err
	}
	defer os.Remove(srcPath)

	// Compose the combined audio. Everything that can fail happens here,
	// before the first destination write.
	combinedPath := srcPath
	combinedDuration := preferred.Duration
	if req.Comment != nil {
		out, err := os.CreateTemp(m.manager.opts.scratchDir, "combined-*")
		if err != nil {
			return nil, fmt.Errorf("create scratch file: %w", err)
		}
		out.Close()
		defer os.Remove(out.Name())

		if err := m.manager.opts.concatenator.Concat(ctx, out.Name(), srcPath, req.Comment.Path); err != nil {
			return nil, fmt.Errorf("concat forward audio: %w", err)
		}
		combinedPath = out.Name()
		combinedDuration = preferred.Duration + req.Comment.Duration
	}

	owner, err := m.owner(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve owner: %w", err)
	}

	messageID, err := m.manager.nextMessageID(ctx)
	if err != nil {
		return nil, err
	}

	subject := req.Subject
	if subject == "" {
		subject = defaultSubject(messageID)
	}

	format := preferred.AudioFormat
	if format == "" {
		format = m.manager.opts.audioFormat.ID
	}

	priority := req.Priority
	if priority == "" {
		priority = src.Priority
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	desc := &store.MessageDescriptor{
		ID:              owner.URI,
		FromURI:         req.FromURI,
		Subject:         subject,
		Timestamp:       ts,
		Priority:        priority,
		OtherRecipients: append([]string(nil), req.OtherRecipients...),
		Duration:        preferred.Duration,
		FilePath:        srcPath,
		AudioFormat:     format,
		ContentLength:   preferred.ContentLength,
	}

	// First destination write: the verbatim ORIGINAL copy. This creates
	// the metadata record.
	if err := m.storeVariantFromFile(ctx, srcPath, store.KindOriginal, messageID, owner, desc); err != nil {
		return nil, fmt.Errorf("store original variant: %w", err)
	}

	// The bare comment is kept as the CURRENT variant, so the standalone
	// comment audio stays available alongside the combined playback copy.
	if req.Comment != nil {
		commentLen, err := req.Comment.ContentLength()
		if err != nil {
			return nil, fmt.Errorf("stat comment audio: %w", err)
		}
		commentDesc := desc.WithMedia(&store.MessageDescriptor{
			Duration:      req.Comment.Duration,
			FilePath:      req.Comment.Path,
			AudioFormat:   m.manager.opts.audioFormat.ID,
			ContentLength: commentLen,
		})
		if err := m.storeVariantFromFile(ctx, req.Comment.Path, store.KindCurrent, messageID, owner, commentDesc); err != nil {
			return nil, fmt.Errorf("store comment variant: %w", err)
		}
	}

	combinedLen, err := fileLength(combinedPath)
	if err != nil {
		return nil, fmt.Errorf("stat combined audio: %w", err)
	}
	combinedDesc := desc.WithContentLength(combinedLen)
	combinedDesc.Duration = combinedDuration
	combinedDesc.FilePath = combinedPath

	if err := m.storeVariantFromFile(ctx, combinedPath, store.KindCombined, messageID, owner, combinedDesc); err != nil {
		return nil, fmt.Errorf("store combined variant: %w", err)
	}

	msg, err := m.manager.store.FindInLabel(ctx, m.user, store.FolderInbox.ID(), messageID)
	if err != nil {
		return nil, fmt.Errorf("read back forward: %w", err)
	}

	m.manager.notify(ctx, m.user)
	if err := m.manager.events.MessageDeposited.Publish(ctx, MessageDepositedEvent{
		User:        m.user,
		MessageID:   messageID,
		FromURI:     req.FromURI,
		Urgent:      msg.Urgent(),
		DepositedAt: time.Now().UTC(),
	}); err != nil {
		m.manager.logger.Error("failed to publish MessageDeposited",
			"error", err, "user", m.user, "message_id", messageID)
	}

	m.manager.logger.Debug("message forwarded",
		"user", m.user, "message_id", messageID,
		"source_user", req.SourceUser, "source_message_id", req.SourceMessageID)
	return msg, nil
}

// materializeVariant downloads a variant payload to a scratch file and
// returns its path. The caller removes the file.
func (m *userMailbox) materializeVariant(ctx context.Context, v *store.AudioVariant) (string, error) {
	rc, err := m.manager.store.OpenVariant(ctx, v)
	if err != nil {
		return "", fmt.Errorf("open variant: %w", err)
	}
	defer rc.Close()

	f, err := os.CreateTemp(m.manager.opts.scratchDir, "forward-*")
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close scratch file: %w", err)
	}
	return f.Name(), nil
}

// storeVariantFromFile streams a scratch file into the store as an inbox
// variant of the given kind.
func (m *userMailbox) storeVariantFromFile(ctx context.Context, path string, kind store.VariantKind,
	messageID string, owner store.Owner, desc *store.MessageDescriptor) error {
	content, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer content.Close()

	filename := kind.Filename(messageID, desc.AudioFormat)
	_, err = m.manager.store.StoreVariant(ctx, content, filename, kind,
		store.FolderInbox.ID(), messageID, owner, desc, true)
	return err
}

func fileLength(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
