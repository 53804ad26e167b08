package voicemail

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sipfoundry/voicemail/store"
	"go.opentelemetry.io/otel/attribute"
)

// userMailbox is the default implementation of Mailbox.
type userMailbox struct {
	user      string
	manager   *manager
	validUser bool // set by Mailbox() after validation
}

// User returns the user name of this mailbox.
func (m *userMailbox) User() string {
	return m.user
}

// isConnected checks if the manager is connected.
func (m *userMailbox) isConnected() bool {
	return atomic.LoadInt32(&m.manager.state) == stateConnected
}

// checkAccess verifies the mailbox is ready for operations.
// Returns ErrNotConnected if the manager isn't connected,
// or ErrInvalidUser if the user name failed validation.
func (m *userMailbox) checkAccess() error {
	if !m.isConnected() {
		return ErrNotConnected
	}
	if !m.validUser {
		return ErrInvalidUser
	}
	return nil
}

// owner resolves this mailbox's owner record.
// owner resolves the mailbox owner record. The owner name is pinned to
// the mailbox user so that writes land under the same key the read
// paths query by, whatever the resolver returns.
func (m *userMailbox) owner(ctx context.Context) (store.Owner, error) {
	o, err := m.manager.resolver.Resolve(ctx, m.user)
	if err != nil {
		return store.Owner{}, err
	}
	o.Name = m.user
	return o, nil
}

// =============================================================================
// Reads
// =============================================================================

// Message retrieves a message by external message id, searching all folders.
func (m *userMailbox) Message(ctx context.Context, messageID string) (*store.Message, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	msg, err := m.manager.store.FindByMessageID(ctx, m.user, messageID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return msg, nil
}

// Messages lists the mailbox's messages in a folder, newest first.
func (m *userMailbox) Messages(ctx context.Context, folder store.Folder) ([]*store.Message, error) {
	return m.listWithOTel(ctx, folder.ID(), false)
}

// UnheardMessages lists the unheard subset of the inbox, newest first.
func (m *userMailbox) UnheardMessages(ctx context.Context) ([]*store.Message, error) {
	return m.listWithOTel(ctx, store.FolderInbox.ID(), true)
}

// listWithOTel is a helper that adds OTel instrumentation to list operations.
func (m *userMailbox) listWithOTel(ctx context.Context, label string, unheardOnly bool) ([]*store.Message, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := m.manager.otel.startSpan(ctx, "voicemail.list",
		attribute.String("user", m.user),
		attribute.String("folder", label),
	)
	start := time.Now()
	var listErr error
	var resultCount int
	defer func() {
		endSpan(listErr)
		m.manager.otel.recordList(ctx, time.Since(start), label, resultCount, listErr)
	}()

	msgs, err := m.manager.store.FindByLabel(ctx, m.user, label, unheardOnly)
	if err != nil {
		listErr = err
		return nil, fmt.Errorf("list messages: %w", err)
	}
	resultCount = len(msgs)

	return msgs, nil
}

// IsUnheard reports whether the message with the given id is unheard.
func (m *userMailbox) IsUnheard(ctx context.Context, messageID string) (bool, error) {
	msg, err := m.Message(ctx, messageID)
	if err != nil {
		return false, err
	}
	return msg.Unheard, nil
}

// Details returns the current mailbox summary.
func (m *userMailbox) Details(ctx context.Context) (*MailboxDetails, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	return loadDetails(ctx, m.manager.store, m.user)
}

// Audio opens the message's preferred audio variant for playback.
// The preferred variant is the one with the highest intrinsic kind
// priority. Returns ErrNoAudio for a message with no stored variants.
func (m *userMailbox) Audio(ctx context.Context, messageID string) (io.ReadCloser, *store.AudioVariant, error) {
	msg, err := m.Message(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}

	variants, err := m.manager.store.Variants(ctx, msg)
	if err != nil {
		return nil, nil, fmt.Errorf("find variants: %w", err)
	}
	v := store.PreferredVariant(variants)
	if v == nil {
		return nil, nil, ErrNoAudio
	}

	rc, err := m.manager.store.OpenVariant(ctx, v)
	if err != nil {
		return nil, nil, fmt.Errorf("open variant: %w", err)
	}
	return rc, v, nil
}

// =============================================================================
// Folder state machine
// =============================================================================

// Save advances a message per the save rules:
//
//	inbox   -> saved   (notify, mark heard)
//	deleted -> inbox   (notify; "undelete")
//	saved   -> saved   (no-op)
//
// Conference messages are out-of-band for these rules and are left alone.
func (m *userMailbox) Save(ctx context.Context, messageID string) error {
	return m.transition(ctx, "save", messageID, func(ctx context.Context, msg *store.Message, folder store.Folder) error {
		switch folder {
		case store.FolderInbox:
			if err := m.manager.store.Move(ctx, msg, store.FolderSaved.ID(), true); err != nil {
				return fmt.Errorf("move to saved: %w", err)
			}
			m.manager.notify(ctx, m.user)
		case store.FolderDeleted:
			if err := m.manager.store.Move(ctx, msg, store.FolderInbox.ID(), false); err != nil {
				return fmt.Errorf("undelete: %w", err)
			}
			m.manager.notify(ctx, m.user)
		}
		return nil
	})
}

// Delete advances a message per the delete rules:
//
//	inbox   -> deleted (notify, mark heard)
//	saved   -> deleted (no notification)
//	deleted -> purged  (blobs and metadata physically removed)
func (m *userMailbox) Delete(ctx context.Context, messageID string) error {
	return m.transition(ctx, "delete", messageID, func(ctx context.Context, msg *store.Message, folder store.Folder) error {
		switch folder {
		case store.FolderInbox:
			if err := m.manager.store.Move(ctx, msg, store.FolderDeleted.ID(), true); err != nil {
				return fmt.Errorf("move to deleted: %w", err)
			}
			m.manager.notify(ctx, m.user)
		case store.FolderSaved:
			if err := m.manager.store.Move(ctx, msg, store.FolderDeleted.ID(), false); err != nil {
				return fmt.Errorf("move to deleted: %w", err)
			}
		case store.FolderDeleted:
			if err := m.manager.store.Delete(ctx, msg); err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			if err := m.manager.events.MessageDeleted.Publish(ctx, MessageDeletedEvent{
				User:      m.user,
				MessageID: msg.MessageID,
				DeletedAt: time.Now().UTC(),
			}); err != nil {
				m.manager.logger.Error("failed to publish MessageDeleted",
					"error", err, "user", m.user, "message_id", msg.MessageID)
			}
		}
		return nil
	})
}

// MarkHeard clears the unheard flag, notifying only if the flag actually
// changes.
func (m *userMailbox) MarkHeard(ctx context.Context, messageID string) error {
	return m.setUnheard(ctx, messageID, false)
}

// MarkUnheard sets the unheard flag, notifying only if the flag actually
// changes.
func (m *userMailbox) MarkUnheard(ctx context.Context, messageID string) error {
	return m.setUnheard(ctx, messageID, true)
}

func (m *userMailbox) setUnheard(ctx context.Context, messageID string, unheard bool) error {
	action := "markHeard"
	if unheard {
		action = "markUnheard"
	}
	return m.transition(ctx, action, messageID, func(ctx context.Context, msg *store.Message, _ store.Folder) error {
		if msg.Unheard == unheard {
			return nil
		}
		if err := m.manager.store.SetUnheard(ctx, msg, unheard); err != nil {
			return fmt.Errorf("set unheard: %w", err)
		}
		m.manager.notify(ctx, m.user)
		return nil
	})
}

// MoveToFolder mutates the folder label directly, bypassing the state
// machine rules. The label is stored as given, even if it names no known
// folder. Fires no notification.
func (m *userMailbox) MoveToFolder(ctx context.Context, messageID, label string) error {
	if err := m.checkAccess(); err != nil {
		return err
	}

	msg, err := m.Message(ctx, messageID)
	if err != nil {
		return err
	}
	if err := m.manager.store.Move(ctx, msg, label, false); err != nil {
		return fmt.Errorf("move to folder: %w", err)
	}
	return nil
}

// UpdateSubject rewrites the message subject. Metadata-only mutation,
// fires no notification.
func (m *userMailbox) UpdateSubject(ctx context.Context, messageID, subject string) error {
	msg, err := m.Message(ctx, messageID)
	if err != nil {
		return err
	}
	if err := m.manager.store.UpdateSubject(ctx, msg, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// EmptyDeleted purges every message in the deleted folder.
func (m *userMailbox) EmptyDeleted(ctx context.Context) error {
	if err := m.checkAccess(); err != nil {
		return err
	}
	if err := m.manager.store.Purge(ctx, m.user, store.FolderDeleted.ID()); err != nil {
		return fmt.Errorf("empty deleted: %w", err)
	}
	return nil
}

// transition runs a state machine action with lookup, folder resolution
// and OTel instrumentation shared across the actions. Messages whose label
// is a reserved slot or legacy value are rejected; conference messages
// fall through every action untouched.
func (m *userMailbox) transition(ctx context.Context, action, messageID string,
	fn func(ctx context.Context, msg *store.Message, folder store.Folder) error) error {
	if err := m.checkAccess(); err != nil {
		return err
	}

	ctx, endSpan := m.manager.otel.startSpan(ctx, "voicemail."+action,
		attribute.String("user", m.user),
		attribute.String("message_id", messageID),
	)
	start := time.Now()
	var opErr error
	defer func() {
		endSpan(opErr)
		m.manager.otel.recordTransition(ctx, time.Since(start), action, opErr)
	}()

	msg, err := m.Message(ctx, messageID)
	if err != nil {
		opErr = err
		return err
	}

	folder, ok := msg.Folder()
	if !ok {
		opErr = fmt.Errorf("%w: %q", ErrInvalidFolder, msg.Label)
		return opErr
	}

	opErr = fn(ctx, msg, folder)
	return opErr
}
