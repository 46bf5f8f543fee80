package authcore

import (
	"sync"
	"time"
)

// activeCache remembers subjects that were active at their last lookup. Only positive
// answers are cached, so a deactivation is visible after at most ttl, or immediately
// when the caller invalidates the subject.
type activeCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
	// gen advances on every invalidate. A lookup that started before an invalidate must
	// not cache its answer.
	gen uint64
}

func newActiveCache(ttl time.Duration, now func() time.Time) *activeCache {
	if ttl <= 0 {
		return nil
	}
	return &activeCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]time.Time),
	}
}

func (c *activeCache) hit(userID string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	until, ok := c.entries[userID]
	if !ok {
		return false
	}
	if !c.now().Before(until) {
		delete(c.entries, userID)
		return false
	}
	return true
}

// generation returns the token a caller passes to markActive after its store lookup.
func (c *activeCache) generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// markActive caches userID unless an invalidate happened since gen was taken.
func (c *activeCache) markActive(userID string, gen uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.entries[userID] = c.now().Add(c.ttl)
}

func (c *activeCache) invalidate(userID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.gen++
	delete(c.entries, userID)
	c.mu.Unlock()
}
