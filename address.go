package voicemail

import (
	"context"

	"github.com/sipfoundry/voicemail/store"
)

// AddressResolver maps a mailbox user name to the owner record persisted
// with their messages. Deployments back this with their user directory;
// the default synthesizes a SIP URI from the configured domain.
//
// Only the URI is taken from the resolved record: the owner name is
// always the mailbox user, which is the key every storage query uses.
type AddressResolver interface {
	Resolve(ctx context.Context, user string) (store.Owner, error)
}

// domainResolver is the default AddressResolver. It builds
// "sip:<user>@<domain>" URIs without consulting a directory.
type domainResolver struct {
	domain string
}

func (r *domainResolver) Resolve(_ context.Context, user string) (store.Owner, error) {
	return store.Owner{Name: user, URI: "sip:" + user + "@" + r.domain}, nil
}

// isValidUser checks if a mailbox user name is valid.
// Valid names are non-empty and contain only safe characters.
func isValidUser(user string) bool {
	if user == "" {
		return false
	}
	// Allow alphanumeric, hyphen, underscore, period, at-sign
	// Disallow: *, :, /, \, spaces, and control characters
	for _, c := range user {
		if c == '*' || c == ':' || c == '/' || c == '\\' ||
			c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
			c < 32 || c == 127 {
			return false
		}
	}
	return true
}
