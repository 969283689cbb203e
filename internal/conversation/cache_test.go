package conversation

import (
	"testing"
	"time"
)

func TestReplyCacheHitAndKeyIsolation(t *testing.T) {
	t.Parallel()

	c := NewReplyCache(time.Minute)
	c.Set("c1", "where is my order", "On its way.")

	if got, ok := c.Get("c1", "where is my order"); !ok || got != "On its way." {
		t.Errorf("Get() = %q, %v, want the cached reply", got, ok)
	}
	if _, ok := c.Get("c2", "where is my order"); ok {
		t.Error("reply leaked across conversations")
	}
	if _, ok := c.Get("c1", "where is my parcel"); ok {
		t.Error("reply served for a different message")
	}
}

func TestReplyCacheEntriesExpire(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := NewReplyCache(time.Minute)
	c.now = func() time.Time { return now }

	c.Set("c1", "hello", "Hi there.")
	if _, ok := c.Get("c1", "hello"); !ok {
		t.Fatal("entry missing before expiry")
	}

	now = now.Add(61 * time.Second)
	if _, ok := c.Get("c1", "hello"); ok {
		t.Error("entry served after expiry")
	}

	// Set prunes dead entries rather than letting them accumulate.
	c.Set("c1", "other", "Sure.")
	if len(c.entries) != 1 {
		t.Errorf("len(entries) = %d after pruning, want 1", len(c.entries))
	}
}
