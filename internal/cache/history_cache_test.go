package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"

	"portalchat/internal/model"
)

func newTestCache(t *testing.T) (*HistoryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewHistoryCache(client, time.Minute), mr
}

func TestHistoryRoundTripUnderCurrentVersion(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	version, err := c.Version(ctx, "s1")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != 0 {
		t.Fatalf("expected version 0 for an unknown session, got %d", version)
	}

	want := []model.Message{{ID: 1, SessionID: "s1", Role: model.RoleUser, Content: "hi"}}
	if err := c.SetHistory(ctx, "s1", version, want); err != nil {
		t.Fatalf("set history: %v", err)
	}
	got, hit, err := c.GetHistory(ctx, "s1", version)
	if err != nil || !hit {
		t.Fatalf("expected cache hit, hit=%v err=%v", hit, err)
	}
	if len(got) != 1 || got[0].Content != "hi" {
		t.Fatalf("unexpected history %+v", got)
	}
}

func TestInvalidateRejectsOlderGeneration(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	loadedAt, _ := c.Version(ctx, "s1")
	if err := c.Invalidate(ctx, "s1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	// A reader that loaded before the insert tries to cache its list.
	if err := c.SetHistory(ctx, "s1", loadedAt, []model.Message{}); err != nil {
		t.Fatalf("set history: %v", err)
	}
	if mr.Exists("chat:history:s1") {
		t.Fatal("list from an old generation must not be stored")
	}

	current, err := c.Version(ctx, "s1")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if current != loadedAt+1 {
		t.Fatalf("expected version %d, got %d", loadedAt+1, current)
	}
	if _, hit, _ := c.GetHistory(ctx, "s1", current); hit {
		t.Fatal("expected a miss after invalidation")
	}
}

func TestGetHistoryIgnoresEntryFromOtherVersion(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.SetHistory(ctx, "s1", 0, []model.Message{{ID: 1, SessionID: "s1"}}); err != nil {
		t.Fatalf("set history: %v", err)
	}
	if _, hit, _ := c.GetHistory(ctx, "s1", 1); hit {
		t.Fatal("entry cached under version 0 must not serve version 1")
	}
}

func TestVersionKeyOutlivesHistory(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Invalidate(ctx, "s1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := c.SetHistory(ctx, "s1", 1, []model.Message{}); err != nil {
		t.Fatalf("set history: %v", err)
	}
	if mr.TTL("chat:history:version:s1") <= mr.TTL("chat:history:s1") {
		t.Fatalf("version ttl %v must exceed history ttl %v",
			mr.TTL("chat:history:version:s1"), mr.TTL("chat:history:s1"))
	}
}
