package voicemail

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/event/v3"
)

// Event names for voicemail events.
const (
	EventNameMailboxChanged   = "voicemail.mailbox.changed"
	EventNameMessageDeposited = "voicemail.message.deposited"
	EventNameMessageDeleted   = "voicemail.message.deleted"
)

// MailboxChangedEvent is published whenever observable mailbox state
// changes. It carries the summary a message-waiting-indicator subscriber
// needs to light or clear the lamp.
type MailboxChangedEvent struct {
	User         string    `json:"user"`
	InboxCount   int       `json:"inbox_count"`
	UnheardCount int       `json:"unheard_count"`
	SavedCount   int       `json:"saved_count"`
	DeletedCount int       `json:"deleted_count"`
	ChangedAt    time.Time `json:"changed_at"`
}

// MessageDepositedEvent is published when a new message lands in a
// mailbox, either from a deposit or a forward.
type MessageDepositedEvent struct {
	User        string    `json:"user"`
	MessageID   string    `json:"message_id"`
	FromURI     string    `json:"from_uri"`
	Urgent      bool      `json:"urgent"`
	DepositedAt time.Time `json:"deposited_at"`
}

// MessageDeletedEvent is published when a message is permanently removed.
// This event is only published on the second, destructive delete, not on
// the move to the deleted folder.
type MessageDeletedEvent struct {
	User      string    `json:"user"`
	MessageID string    `json:"message_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// ManagerEvents provides access to per-manager event instances.
// Each manager creates its own events bound to its own event bus,
// enabling independent event routing and parallel testing.
//
// Subscribe to events:
//
//	mgr.Events().MailboxChanged.Subscribe(ctx, handler)
//	mgr.Events().MessageDeposited.Subscribe(ctx, handler)
//	mgr.Events().MessageDeleted.Subscribe(ctx, handler)
type ManagerEvents struct {
	// MailboxChanged is published whenever observable mailbox state changes.
	MailboxChanged event.Event[MailboxChangedEvent]

	// MessageDeposited is published when a new message lands in a mailbox.
	MessageDeposited event.Event[MessageDepositedEvent]

	// MessageDeleted is published when a message is permanently removed.
	MessageDeleted event.Event[MessageDeletedEvent]
}

// newManagerEvents creates per-manager event instances with a unique name
// prefix.
func newManagerEvents(namePrefix string) *ManagerEvents {
	return &ManagerEvents{
		MailboxChanged:   event.New[MailboxChangedEvent](namePrefix + "." + EventNameMailboxChanged),
		MessageDeposited: event.New[MessageDepositedEvent](namePrefix + "." + EventNameMessageDeposited),
		MessageDeleted:   event.New[MessageDeletedEvent](namePrefix + "." + EventNameMessageDeleted),
	}
}

// registerManagerEvents registers per-manager events with the given bus.
func registerManagerEvents(ctx context.Context, bus *event.Bus, events *ManagerEvents) error {
	if err := event.Register(ctx, bus, events.MailboxChanged); err != nil {
		return fmt.Errorf("register MailboxChanged: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageDeposited); err != nil {
		return fmt.Errorf("register MessageDeposited: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageDeleted); err != nil {
		return fmt.Errorf("register MessageDeleted: %w", err)
	}
	return nil
}
