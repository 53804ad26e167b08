package voicemail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"github.com/sipfoundry/voicemail/store"
	"golang.org/x/sync/semaphore"
)

// ManagerHealth provides health and state information about the manager.
type ManagerHealth interface {
	// IsConnected returns true if the manager is connected and ready.
	IsConnected() bool
}

// Manager owns the voicemail message store (server-side). It handles the
// connection to storage and creates per-user mailbox clients.
//
// Composed of:
//   - ManagerHealth: Health and state queries (IsConnected)
type Manager interface {
	ManagerHealth

	// Connect establishes connections to the storage backend.
	Connect(ctx context.Context) error
	// Close closes all connections after draining in-flight deposits.
	Close(ctx context.Context) error
	// Mailbox returns a mailbox client for the given user.
	// The returned client shares the manager's connections.
	Mailbox(user string) Mailbox
	// DeleteMailbox permanently removes every message the user owns,
	// including reserved slots.
	DeleteMailbox(ctx context.Context, user string) error
	// RenameMailbox rewrites the owner fields on every record belonging to
	// oldUser, without touching message identities or payloads.
	RenameMailbox(ctx context.Context, newUser, oldUser string) error
	// Events returns per-manager event instances for subscribing and
	// publishing. Each manager has its own events bound to its own event
	// bus, enabling independent event routing and parallel testing.
	Events() *ManagerEvents
}

// MessageReader provides message retrieval for one mailbox.
type MessageReader interface {
	// Message retrieves a message by external message id, searching all
	// folders.
	Message(ctx context.Context, messageID string) (*store.Message, error)
	// Messages lists the mailbox's messages in a folder, newest first.
	Messages(ctx context.Context, folder store.Folder) ([]*store.Message, error)
	// UnheardMessages lists the unheard subset of the inbox, newest first.
	UnheardMessages(ctx context.Context) ([]*store.Message, error)
	// IsUnheard reports whether the message with the given id is unheard.
	IsUnheard(ctx context.Context, messageID string) (bool, error)
	// Details returns the current mailbox summary.
	Details(ctx context.Context) (*MailboxDetails, error)
	// Audio opens the message's preferred audio variant for playback.
	Audio(ctx context.Context, messageID string) (io.ReadCloser, *store.AudioVariant, error)
}

// MessageMutator provides the folder state machine and metadata mutations
// for one mailbox.
type MessageMutator interface {
	// Save advances the message per the save rules: inbox moves to saved,
	// deleted moves back to inbox, saved is a no-op.
	Save(ctx context.Context, messageID string) error
	// Delete advances the message per the delete rules: inbox and saved
	// move to deleted, deleted is purged permanently.
	Delete(ctx context.Context, messageID string) error
	// MarkHeard clears the unheard flag.
	MarkHeard(ctx context.Context, messageID string) error
	// MarkUnheard sets the unheard flag.
	MarkUnheard(ctx context.Context, messageID string) error
	// MoveToFolder mutates the folder label directly, bypassing the state
	// machine rules. Fires no notification.
	MoveToFolder(ctx context.Context, messageID, label string) error
	// UpdateSubject rewrites the message subject. Fires no notification.
	UpdateSubject(ctx context.Context, messageID, subject string) error
	// EmptyDeleted purges every message in the deleted folder.
	EmptyDeleted(ctx context.Context) error
}

// MessageComposer provides operations that create new messages in a
// mailbox.
type MessageComposer interface {
	// Deposit commits a staged recording as a new inbox message.
	Deposit(ctx context.Context, rec *StagedRecording) (*store.Message, error)
	// DepositTo commits a staged recording into an arbitrary folder,
	// notifying only for inbox deposits.
	DepositTo(ctx context.Context, folder store.Folder, rec *StagedRecording) (*store.Message, error)
	// Forward composes a copy of a message, optionally merged with a
	// recorded comment, into this mailbox's inbox.
	Forward(ctx context.Context, req ForwardRequest) (*store.Message, error)
	// CopyTo duplicates a message of this mailbox into the destination
	// user's inbox under a freshly allocated message id.
	CopyTo(ctx context.Context, destUser, messageID string) (*store.Message, error)
}

// SlotClient provides access to the mailbox's reserved audio slots
// (recorded name, per-type greetings). Slots hold at most one current
// value, are not subject to folder transitions and fire no notifications.
type SlotClient interface {
	SaveRecordedName(ctx context.Context, rec *StagedRecording) error
	RecordedName(ctx context.Context) (io.ReadCloser, error)
	SaveGreeting(ctx context.Context, gt GreetingType, rec *StagedRecording) error
	Greeting(ctx context.Context, gt GreetingType) (io.ReadCloser, error)
}

// Mailbox provides voicemail operations for one user.
//
// Composed of focused client interfaces:
//   - MessageReader: Retrieval (Message, Messages, Details, Audio)
//   - MessageMutator: Folder state machine (Save, Delete, MarkHeard, ...)
//   - MessageComposer: New messages (Deposit, Forward, CopyTo)
//   - SlotClient: Reserved slots (recorded name, greetings)
type Mailbox interface {
	User() string
	MessageReader
	MessageMutator
	MessageComposer
	SlotClient
}

// Connection states for the manager.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// manager is the default implementation of Manager.
type manager struct {
	store      store.Store
	logger     *slog.Logger
	opts       *options
	state      int32 // stateDisconnected, stateConnecting, or stateConnected
	otel       *otelInstrumentation
	notifier   Notifier
	resolver   AddressResolver
	depositSem *semaphore.Weighted // Limits concurrent deposits/forwards
	eventBus   *event.Bus          // Event bus for publishing events
	events     *ManagerEvents      // Per-manager event instances
}

// NewManager creates a new voicemail manager.
// Call Connect() to establish the connection to the backend.
func NewManager(opts ...Option) (Manager, error) {
	o := newOptions(opts...)

	if o.store == nil {
		return nil, ErrStoreRequired
	}

	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	m := &manager{
		store:      o.store,
		logger:     o.logger,
		opts:       o,
		otel:       otelInstr,
		depositSem: semaphore.NewWeighted(int64(o.maxConcurrentDeposits)),
	}

	m.resolver = o.resolver
	if m.resolver == nil {
		m.resolver = &domainResolver{domain: o.sipDomain}
	}

	return m, nil
}

// Events returns per-manager event instances for subscribing and publishing.
func (m *manager) Events() *ManagerEvents {
	return m.events
}

// IsConnected returns true if the manager is connected and ready.
func (m *manager) IsConnected() bool {
	return atomic.LoadInt32(&m.state) == stateConnected
}

// Connect establishes the connection to the storage backend.
func (m *manager) Connect(ctx context.Context) error {
	// Use three-state to prevent Mailbox() operations from seeing partial
	// initialization: stateDisconnected -> stateConnecting -> stateConnected
	if !atomic.CompareAndSwapInt32(&m.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	// Reset to disconnected on failure, set to connected on success
	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&m.state, stateConnected)
		} else {
			atomic.StoreInt32(&m.state, stateDisconnected)
		}
	}()

	if err := m.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	if err := m.initEventBus(ctx); err != nil {
		m.store.Close(ctx)
		return fmt.Errorf("init event bus: %w", err)
	}

	// Default notifier publishes on the bus, so it can only be built after
	// the bus exists.
	m.notifier = m.opts.notifier
	if m.notifier == nil {
		m.notifier = &eventNotifier{events: m.events}
	}

	success = true
	m.logger.Info("voicemail manager connected")
	return nil
}

// busCounter generates unique suffixes for event bus names.
var busCounter int64

// initEventBus initializes the event bus for this manager.
// Each manager creates its own bus with per-manager events bound to it.
func (m *manager) initEventBus(ctx context.Context) error {
	serviceName := m.opts.serviceName
	if serviceName == "" {
		serviceName = "voicemail"
	}
	// Each bus needs a unique name, so append a counter suffix
	busName := fmt.Sprintf("%s-%d", serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case m.opts.eventTransport != nil:
		m.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(m.opts.eventTransport))
	case m.opts.redisClient != nil:
		m.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(m.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		m.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}

	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	m.eventBus = bus

	m.events = newManagerEvents(busName)
	if err := registerManagerEvents(ctx, bus, m.events); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register events: %w", err)
	}

	return nil
}

// Close closes the connection to the storage backend.
func (m *manager) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&m.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	// Wait for in-flight deposits to complete (graceful shutdown). After
	// the state flips to disconnected no new deposits can start because
	// checkAccess fails; acquiring every semaphore slot waits out the rest.
	m.logger.Info("waiting for in-flight operations to complete...", "timeout", m.opts.shutdownTimeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, m.opts.shutdownTimeout)
	defer shutdownCancel()
	if err := m.depositSem.Acquire(shutdownCtx, int64(m.opts.maxConcurrentDeposits)); err != nil {
		m.logger.Warn("timeout waiting for in-flight operations, proceeding with shutdown",
			"error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
	} else {
		m.depositSem.Release(int64(m.opts.maxConcurrentDeposits))
		m.logger.Info("all in-flight operations completed")
	}

	// Close event bus only if using a real transport. For noop the bus
	// holds no resources and closing would break events for other managers
	// sharing the same globals.
	if m.eventBus != nil && (m.opts.eventTransport != nil || m.opts.redisClient != nil) {
		if err := m.eventBus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}

	if err := m.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

// Mailbox returns a mailbox client for the given user.
func (m *manager) Mailbox(user string) Mailbox {
	return &userMailbox{
		user:      user,
		manager:   m,
		validUser: isValidUser(user),
	}
}

// DeleteMailbox permanently removes every message the user owns.
func (m *manager) DeleteMailbox(ctx context.Context, user string) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}
	if !isValidUser(user) {
		return ErrInvalidUser
	}
	if err := m.store.DeleteOwner(ctx, user); err != nil {
		return fmt.Errorf("delete mailbox: %w", err)
	}
	return nil
}

// RenameMailbox rewrites the owner fields on every record belonging to
// oldUser.
func (m *manager) RenameMailbox(ctx context.Context, newUser, oldUser string) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}
	if !isValidUser(newUser) || !isValidUser(oldUser) {
		return ErrInvalidUser
	}
	owner, err := m.resolver.Resolve(ctx, newUser)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", newUser, err)
	}
	if err := m.store.RenameOwner(ctx, owner, oldUser); err != nil {
		return fmt.Errorf("rename mailbox: %w", err)
	}
	return nil
}

// nextMessageID allocates a fresh external message id from the sequence
// counter. Counter failure is fatal and never retried: blind retry risks
// either stalling delivery or silently skipping ids.
func (m *manager) nextMessageID(ctx context.Context) (string, error) {
	key := store.CounterKey(m.opts.systemIdentity)
	seq, err := m.store.NextSequence(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%w: key %s: %v", ErrSequence, key, err)
	}
	return store.FormatMessageID(m.opts.systemIdentity, seq), nil
}

// notify fires the mailbox-changed signal with the user's current summary.
// Fire-and-forget: failures are logged, never surfaced to the triggering
// operation.
func (m *manager) notify(ctx context.Context, user string) {
	details, err := loadDetails(ctx, m.store, user)
	if err != nil {
		m.logger.Error("failed to load mailbox summary for notification",
			"error", err, "user", user)
		return
	}
	if err := m.notifier.MailboxChanged(ctx, details); err != nil {
		m.logger.Error("failed to notify mailbox change",
			"error", err, "user", user)
	}
}
