package voicemail

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sipfoundry/voicemail/store/memory"
)

// Deposits publish through the Redis transport without blocking the
// storage path.
func TestEventPublishOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mgr, err := NewManager(
		WithStore(memory.New()),
		WithRedisClient(client),
	)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	ctx := context.Background()
	if err := mgr.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() { mgr.Close(ctx) })

	mbx := mgr.Mailbox("201")
	msg := deposit(t, mbx, "event payload")
	if msg.MessageID == "" {
		t.Fatal("expected message id")
	}

	if err := mbx.Delete(ctx, msg.MessageID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := mbx.Delete(ctx, msg.MessageID); err != nil {
		t.Fatalf("purge failed: %v", err)
	}
}
