package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry keeps entries in process memory. One mutex guards both maps, so every
// operation, Rotate included, is atomic.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]Entry
	byUser  map[string]map[string]struct{}
	now     func() time.Time
}

// NewMemory returns an empty registry. A nil clock means time.Now.
func NewMemory(now func() time.Time) *MemoryRegistry {
	if now == nil {
		now = time.Now
	}
	return &MemoryRegistry{
		entries: make(map[string]Entry),
		byUser:  make(map[string]map[string]struct{}),
		now:     now,
	}
}

func (m *MemoryRegistry) Register(_ context.Context, jti, userID string, expiresAt time.Time) error {
	if err := validateEntry(jti, userID, expiresAt); err != nil {
		return err
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(Entry{JTI: jti, UserID: userID, CreatedAt: now, LastUsedAt: now, ExpiresAt: expiresAt})
	return nil
}

func (m *MemoryRegistry) TouchIfLive(_ context.Context, jti string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[jti]
	if !ok {
		return false, nil
	}
	if !e.Live(now) {
		m.deleteLocked(e)
		return false, nil
	}
	e.LastUsedAt = now
	m.entries[jti] = e
	return true, nil
}

func (m *MemoryRegistry) Rotate(_ context.Context, oldJTI, userID string, next Entry) (Entry, error) {
	if err := validateEntry(next.JTI, next.UserID, next.ExpiresAt); err != nil {
		return Entry{}, err
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.entries[oldJTI]
	if !ok || old.UserID != userID {
		return Entry{}, ErrNotLive
	}
	m.deleteLocked(old)
	if !old.Live(now) {
		return Entry{}, ErrNotLive
	}

	next.CreatedAt = now
	next.LastUsedAt = now
	m.putLocked(next)
	return next, nil
}

func (m *MemoryRegistry) Revoke(_ context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[jti]; ok {
		m.deleteLocked(e)
	}
	return nil
}

func (m *MemoryRegistry) RevokeAllForUser(_ context.Context, userID string) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for jti := range m.byUser[userID] {
		e := m.entries[jti]
		if e.Live(now) {
			count++
		}
		delete(m.entries, jti)
	}
	delete(m.byUser, userID)
	return count, nil
}

func (m *MemoryRegistry) ListForUser(_ context.Context, userID string) ([]Entry, error) {
	now := m.now()

	m.mu.Lock()
	out := make([]Entry, 0, len(m.byUser[userID]))
	for jti := range m.byUser[userID] {
		if e := m.entries[jti]; e.Live(now) {
			out = append(out, e)
		}
	}
	m.mu.Unlock()

	sortEntries(out)
	return out, nil
}

func (m *MemoryRegistry) Prune(_ context.Context) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, e := range m.entries {
		if !e.Live(now) {
			m.deleteLocked(e)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryRegistry) putLocked(e Entry) {
	m.entries[e.JTI] = e
	set, ok := m.byUser[e.UserID]
	if !ok {
		set = make(map[string]struct{})
		m.byUser[e.UserID] = set
	}
	set[e.JTI] = struct{}{}
}

func (m *MemoryRegistry) deleteLocked(e Entry) {
	delete(m.entries, e.JTI)
	if set, ok := m.byUser[e.UserID]; ok {
		delete(set, e.JTI)
		if len(set) == 0 {
			delete(m.byUser, e.UserID)
		}
	}
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].JTI < entries[j].JTI
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
