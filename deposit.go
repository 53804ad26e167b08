package voicemail

import (
	"context"
	"fmt"
	"time"

	"github.com/sipfoundry/voicemail/store"
	"go.opentelemetry.io/otel/attribute"
)

// defaultSubject renders the subject written for messages deposited or
// copied without an explicit subject.
func defaultSubject(messageID string) string {
	return "Voice Message " + messageID
}

// Deposit commits a staged recording as a new unheard inbox message.
func (m *userMailbox) Deposit(ctx context.Context, rec *StagedRecording) (*store.Message, error) {
	return m.DepositTo(ctx, store.FolderInbox, rec)
}

// DepositTo commits a staged recording into an arbitrary folder. The
// conference bridge drops its recordings into the conference folder this
// way. A notification fires only for inbox deposits.
//
// The staged recording is consumed: its scratch file is removed whether or
// not the deposit succeeds.
func (m *userMailbox) DepositTo(ctx context.Context, folder store.Folder, rec *StagedRecording) (*store.Message, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	if !rec.valid() {
		return nil, ErrRecordingRequired
	}
	defer func() {
		if err := rec.Discard(); err != nil {
			m.manager.logger.Warn("failed to remove scratch file",
				"error", err, "path", rec.Path)
		}
	}()

	ctx, endSpan := m.manager.otel.startSpan(ctx, "voicemail.deposit",
		attribute.String("user", m.user),
		attribute.String("folder", folder.ID()),
	)
	start := time.Now()
	var depositErr error
	defer func() {
		endSpan(depositErr)
		m.manager.otel.recordDeposit(ctx, time.Since(start), rec.Priority == store.PriorityUrgent, depositErr)
	}()

	if err := m.manager.depositSem.Acquire(ctx, 1); err != nil {
		depositErr = err
		return nil, depositErr
	}
	defer m.manager.depositSem.Release(1)

	owner, err := m.owner(ctx)
	if err != nil {
		depositErr = fmt.Errorf("resolve owner: %w", err)
		return nil, depositErr
	}

	messageID, err := m.manager.nextMessageID(ctx)
	if err != nil {
		depositErr = err
		return nil, depositErr
	}

	subject := rec.Subject
	if subject == "" {
		subject = defaultSubject(messageID)
	}

	length, err := rec.ContentLength()
	if err != nil {
		depositErr = fmt.Errorf("stat recording: %w", err)
		return nil, depositErr
	}

	format := m.manager.opts.audioFormat.ID
	desc := rec.descriptor(owner.URI, subject, format, length)

	content, err := rec.Open()
	if err != nil {
		depositErr = fmt.Errorf("open recording: %w", err)
		return nil, depositErr
	}
	defer content.Close()

	filename := store.KindCurrent.Filename(messageID, format)
	if _, err := m.manager.store.StoreVariant(ctx, content, filename, store.KindCurrent,
		folder.ID(), messageID, owner, desc, true); err != nil {
		depositErr = fmt.Errorf("store recording: %w", err)
		return nil, depositErr
	}

	msg, err := m.manager.store.FindInLabel(ctx, m.user, folder.ID(), messageID)
	if err != nil {
		depositErr = fmt.Errorf("read back deposit: %w", err)
		return nil, depositErr
	}

	if folder == store.FolderInbox {
		m.manager.notify(ctx, m.user)
		if err := m.manager.events.MessageDeposited.Publish(ctx, MessageDepositedEvent{
			User:        m.user,
			MessageID:   messageID,
			FromURI:     rec.FromURI,
			Urgent:      msg.Urgent(),
			DepositedAt: time.Now().UTC(),
		}); err != nil {
			m.manager.logger.Error("failed to publish MessageDeposited",
				"error", err, "user", m.user, "message_id", messageID)
		}
	}

	m.manager.logger.Debug("message deposited",
		"user", m.user, "message_id", messageID, "folder", folder.ID())
	return msg, nil
}

// CopyTo duplicates a message of this mailbox into the destination user's
// inbox under a freshly allocated message id. The copy arrives unheard
// with a fresh default subject; every variant payload is duplicated with
// the message id rewritten in its filename. No forward-style audio
// composition takes place.
func (m *userMailbox) CopyTo(ctx context.Context, destUser, messageID string) (*store.Message, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	if !isValidUser(destUser) {
		return nil, ErrInvalidUser
	}

	msg, err := m.Message(ctx, messageID)
	if err != nil {
		return nil, err
	}

	dest, err := m.manager.resolver.Resolve(ctx, destUser)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", destUser, err)
	}

	newID, err := m.manager.nextMessageID(ctx)
	if err != nil {
		return nil, err
	}

	copied, err := m.manager.store.Copy(ctx, msg, dest, store.FolderInbox.ID(), newID, defaultSubject(newID))
	if err != nil {
		return nil, fmt.Errorf("copy message: %w", err)
	}

	m.manager.notify(ctx, destUser)
	return copied, nil
}
