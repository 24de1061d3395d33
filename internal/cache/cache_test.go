package cache

import (
	"testing"
	"time"
)

func TestCacheReadMiss(t *testing.T) {
	c := New(time.Minute)

	if _, _, ok := c.Read("feed:new"); ok {
		t.Fatalf("expected miss on empty cache")
	}
}

func TestCacheFreshWithinTTL(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	c := New(time.Minute).WithNowFunc(func() time.Time { return now })

	c.Write("feed:new", []byte(`{"battles":[]}`))

	now = now.Add(30 * time.Second)
	payload, fresh, ok := c.Read("feed:new")
	if !ok {
		t.Fatalf("expected hit")
	}
	if !fresh {
		t.Fatalf("expected fresh entry within TTL")
	}
	if string(payload) != `{"battles":[]}` {
		t.Fatalf("unexpected payload %q", payload)
	}
}

func TestCacheStaleAfterTTL(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	c := New(time.Minute).WithNowFunc(func() time.Time { return now })

	c.Write("feed:trending", []byte("old"))

	now = now.Add(2 * time.Minute)
	payload, fresh, ok := c.Read("feed:trending")
	if !ok {
		t.Fatalf("expected stale hit, not a miss")
	}
	if fresh {
		t.Fatalf("expected entry to be stale past TTL")
	}
	if string(payload) != "old" {
		t.Fatalf("expected stale payload to be served, got %q", payload)
	}

	// A rewrite resets the freshness window.
	c.Write("feed:trending", []byte("new"))
	payload, fresh, ok = c.Read("feed:trending")
	if !ok || !fresh || string(payload) != "new" {
		t.Fatalf("expected fresh rewrite, got ok=%v fresh=%v payload=%q", ok, fresh, payload)
	}
}

func TestCacheDrop(t *testing.T) {
	c := New(time.Minute)

	c.Write("feed:games", []byte("x"))
	c.Drop("feed:games")
	if _, _, ok := c.Read("feed:games"); ok {
		t.Fatalf("expected miss after drop")
	}

	c.Drop("feed:games") // absent key is a no-op
}

func TestKey(t *testing.T) {
	if got := Key("notifications", "user-1"); got != "notifications:user-1" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := Key("feed:new", ""); got != "feed:new" {
		t.Fatalf("unexpected key %q", got)
	}
}
