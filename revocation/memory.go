package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryList keeps the blacklist in process memory. Writes are visible to the next
// IsRevoked call on any goroutine.
type MemoryList struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemory returns an empty list. A nil clock means time.Now.
func NewMemory(now func() time.Time) *MemoryList {
	if now == nil {
		now = time.Now
	}
	return &MemoryList{entries: make(map[string]Entry), now: now}
}

func (l *MemoryList) Revoke(_ context.Context, token string, expiresAt time.Time) error {
	now := l.now()
	if !now.Before(expiresAt) {
		return nil
	}
	hash := Hash(token)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[hash]; ok {
		return nil
	}
	l.entries[hash] = Entry{Hash: hash, RevokedAt: now, ExpiresAt: expiresAt}
	return nil
}

func (l *MemoryList) IsRevoked(_ context.Context, token string) (bool, error) {
	hash := Hash(token)

	l.mu.RLock()
	_, ok := l.entries[hash]
	l.mu.RUnlock()
	return ok, nil
}

func (l *MemoryList) Len(_ context.Context) (int, error) {
	now := l.now()

	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, e := range l.entries {
		if now.Before(e.ExpiresAt) {
			n++
		}
	}
	return n, nil
}

// Entries returns a snapshot of the stored entries.
func (l *MemoryList) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	return out
}

// Prune drops entries whose token has expired and returns how many were removed.
func (l *MemoryList) Prune(_ context.Context) (int, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for hash, e := range l.entries {
		if !now.Before(e.ExpiresAt) {
			delete(l.entries, hash)
			removed++
		}
	}
	return removed, nil
}

// Run prunes every interval until ctx is cancelled.
func (l *MemoryList) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = l.Prune(ctx)
		}
	}
}
