// Package voicemail implements the message-store layer of a voicemail
// subsystem: it persists voicemail messages (and a small number of special
// purpose audio slots such as the recorded name and per-type greetings) as
// metadata records with one or more attached binary audio variants, and
// enforces the business rules for how a message moves between mailbox
// folders over its lifetime.
//
// # Architecture
//
//	Manager (this package) -> store.Store -> backend
//
// The Manager owns the folder state machine, forward/copy composition,
// message-id allocation and change notifications. The store package defines
// the repository contract and the typed records; store/mongo, store/postgres
// and store/memory implement it.
//
// # Usage
//
//	client, err := mongodrv.Connect(mongooptions.Client().ApplyURI("mongodb://localhost"))
//	if err != nil { ... }
//	st := mongo.New(client)
//	mgr, err := voicemail.NewManager(
//		voicemail.WithStore(st),
//		voicemail.WithSystemIdentity(1),
//	)
//	if err != nil { ... }
//	if err := mgr.Connect(ctx); err != nil { ... }
//	defer mgr.Close(ctx)
//
//	mbx := mgr.Mailbox("201")
//	inbox, err := mbx.Messages(ctx, store.FolderInbox)
//
// # Notifications
//
// Whenever observable mailbox state changes (deposit, save, delete, heard
// flag change) the Manager fires a mailbox-changed signal carrying the
// current mailbox summary. The default notifier publishes it on the
// manager's event bus (see Events); WithNotifier substitutes any other
// channel, e.g. a SIP MWI publisher.
package voicemail
