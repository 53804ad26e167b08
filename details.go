package voicemail

import (
	"context"
	"fmt"

	"github.com/sipfoundry/voicemail/store"
)

// MailboxDetails is the summary of a mailbox's observable state: the
// message ids in each lifecycle folder, newest first, plus the unheard
// subset of the inbox. It is the payload carried by the mailbox-changed
// notification.
type MailboxDetails struct {
	User string

	Inbox      []string
	Saved      []string
	Deleted    []string
	Conference []string

	// Unheard is the subset of Inbox that has not been heard.
	Unheard []string
}

// InboxCount returns the number of inbox messages.
func (d *MailboxDetails) InboxCount() int { return len(d.Inbox) }

// UnheardCount returns the number of unheard inbox messages.
func (d *MailboxDetails) UnheardCount() int { return len(d.Unheard) }

// HeardCount returns the number of heard inbox messages.
func (d *MailboxDetails) HeardCount() int { return len(d.Inbox) - len(d.Unheard) }

// loadDetails reads the current mailbox summary from the store.
func loadDetails(ctx context.Context, st store.Store, user string) (*MailboxDetails, error) {
	d := &MailboxDetails{User: user}

	for _, q := range []struct {
		folder store.Folder
		dest   *[]string
	}{
		{store.FolderInbox, &d.Inbox},
		{store.FolderSaved, &d.Saved},
		{store.FolderDeleted, &d.Deleted},
		{store.FolderConference, &d.Conference},
	} {
		ids, err := st.FindMessageIDs(ctx, user, q.folder.ID(), false)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", q.folder, err)
		}
		*q.dest = ids
	}

	unheard, err := st.FindMessageIDs(ctx, user, store.FolderInbox.ID(), true)
	if err != nil {
		return nil, fmt.Errorf("list unheard: %w", err)
	}
	d.Unheard = unheard

	return d, nil
}
