package api

import (
	"sync"
	"time"

	"teamcal-comb/app/session"
)

// SessionCache keeps one authenticated session per user so consecutive
// calendar polls reuse cookies instead of re-running the login flow.
// Entries expire after maxAge; the remote site invalidates idle sessions
// on its own schedule anyway.
type SessionCache struct {
	maxAge  time.Duration
	mu      sync.Mutex
	entries map[string]*session.Session
}

func NewSessionCache(maxAge time.Duration) *SessionCache {
	return &SessionCache{
		maxAge:  maxAge,
		entries: make(map[string]*session.Session),
	}
}

func (c *SessionCache) Get(key string) *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.entries[key]
	if !ok {
		return nil
	}
	if sess.Age() > c.maxAge {
		delete(c.entries, key)
		return nil
	}
	return sess
}

func (c *SessionCache) Set(key string, sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = sess
}

// Drop removes a session, typically after the site stopped honoring it.
func (c *SessionCache) Drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
