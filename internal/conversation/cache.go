package conversation

import (
	"sync"
	"time"
)

// ReplyCache memoizes synthesized replies per conversation and
// sanitized message for a short TTL, so a customer repeating
// themselves does not cost another provider call. Escalation replies
// are never cached.
type ReplyCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[replyKey]replyEntry
	now     func() time.Time
}

type replyKey struct {
	conversationID string
	message        string
}

type replyEntry struct {
	reply   string
	expires time.Time
}

// NewReplyCache creates a cache whose entries live for ttl.
func NewReplyCache(ttl time.Duration) *ReplyCache {
	return &ReplyCache{
		ttl:     ttl,
		entries: make(map[replyKey]replyEntry),
		now:     time.Now,
	}
}

// Get returns the cached reply for the conversation and message, if
// one is present and not expired.
func (c *ReplyCache) Get(conversationID, message string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := replyKey{conversationID, message}
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return "", false
	}
	return e.reply, true
}

// Set stores a reply, pruning expired entries while the lock is held.
func (c *ReplyCache) Set(conversationID, message, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[replyKey{conversationID, message}] = replyEntry{
		reply:   reply,
		expires: now.Add(c.ttl),
	}
}
