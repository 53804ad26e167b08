package voicemail

import (
	"context"
	"time"
)

// Notifier is the mailbox-changed notification channel. The manager calls
// it whenever observable mailbox state changes, passing the current
// summary. Notification is fire-and-forget: a Notifier error is logged by
// the manager, never surfaced to the operation that triggered it.
//
// The default notifier publishes a MailboxChangedEvent on the manager's
// event bus. Deployments with a direct MWI path (SIP NOTIFY, XMPP) supply
// their own implementation via WithNotifier.
type Notifier interface {
	MailboxChanged(ctx context.Context, details *MailboxDetails) error
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(ctx context.Context, details *MailboxDetails) error

// MailboxChanged calls f.
func (f NotifierFunc) MailboxChanged(ctx context.Context, details *MailboxDetails) error {
	return f(ctx, details)
}

// eventNotifier is the default Notifier. It publishes on the manager's
// per-manager event bus.
type eventNotifier struct {
	events *ManagerEvents
}

func (n *eventNotifier) MailboxChanged(ctx context.Context, details *MailboxDetails) error {
	return n.events.MailboxChanged.Publish(ctx, MailboxChangedEvent{
		User:         details.User,
		InboxCount:   details.InboxCount(),
		UnheardCount: details.UnheardCount(),
		SavedCount:   len(details.Saved),
		DeletedCount: len(details.Deleted),
		ChangedAt:    time.Now().UTC(),
	})
}
