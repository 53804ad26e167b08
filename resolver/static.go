// Package resolver provides AddressResolver implementations.
package resolver

import (
	"context"
	"fmt"

	"github.com/sipfoundry/voicemail/store"
)

// Static is a map-based AddressResolver for testing and simple
// deployments. It resolves user names from an in-memory map. Safe for
// concurrent use (read-only after creation).
type Static struct {
	owners map[string]store.Owner
}

// NewStatic creates a Static resolver from a map of user name to owner.
// The map is copied to prevent external mutation.
func NewStatic(owners map[string]store.Owner) *Static {
	m := make(map[string]store.Owner, len(owners))
	for k, v := range owners {
		m[k] = v
	}
	return &Static{owners: m}
}

// Resolve returns the owner record for a user name.
func (s *Static) Resolve(_ context.Context, user string) (store.Owner, error) {
	o, ok := s.owners[user]
	if !ok {
		return store.Owner{}, fmt.Errorf("%w: unknown user %q", store.ErrNotFound, user)
	}
	return o, nil
}
