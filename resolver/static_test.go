package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/sipfoundry/voicemail/store"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	owners := map[string]store.Owner{
		"201": {Name: "201", URI: "sip:201@example.com"},
	}
	r := NewStatic(owners)

	t.Run("known user", func(t *testing.T) {
		o, err := r.Resolve(ctx, "201")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if o.URI != "sip:201@example.com" {
			t.Errorf("unexpected uri %q", o.URI)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := r.Resolve(ctx, "999")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("map copied on construction", func(t *testing.T) {
		owners["201"] = store.Owner{Name: "hijacked", URI: "sip:hijacked@example.com"}
		o, err := r.Resolve(ctx, "201")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if o.Name != "201" {
			t.Errorf("resolver should not observe caller mutation, got %q", o.Name)
		}
	})
}
