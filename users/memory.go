package users

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/MrEthical07/authcore"
)

var (
	// ErrDuplicateUsername is returned when a username is already held by another ID.
	ErrDuplicateUsername = errors.New("username already taken")
	// ErrInvalidUser is returned for records without an ID, username, hash or valid role.
	ErrInvalidUser = errors.New("invalid user record")
	// ErrProtectedUser is returned when an admin account would be deactivated.
	ErrProtectedUser = errors.New("admin accounts cannot be deactivated")
)

// MemoryStore is an in-process credential store. It implements authcore.UserProvider and
// authcore.PasswordUpdater and adds the admin mutations the demo server exposes.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]authcore.User
	byName map[string]string
}

var (
	_ authcore.UserProvider    = (*MemoryStore)(nil)
	_ authcore.PasswordUpdater = (*MemoryStore)(nil)
)

// NewMemoryStore returns a store seeded with users.
func NewMemoryStore(seed ...authcore.User) (*MemoryStore, error) {
	s := &MemoryStore{
		byID:   make(map[string]authcore.User),
		byName: make(map[string]string),
	}
	for _, u := range seed {
		if err := s.Put(u); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Put inserts or replaces the user with u.ID.
func (s *MemoryStore) Put(u authcore.User) error {
	if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Username) == "" || u.PasswordHash == "" {
		return ErrInvalidUser
	}
	if !u.Role.Valid() {
		return ErrInvalidUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byName[u.Username]; ok && id != u.ID {
		return ErrDuplicateUsername
	}
	if old, ok := s.byID[u.ID]; ok && old.Username != u.Username {
		delete(s.byName, old.Username)
	}
	s.byID[u.ID] = u
	s.byName[u.Username] = u.ID
	return nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (authcore.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return authcore.User{}, authcore.ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (authcore.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok {
		return authcore.User{}, authcore.ErrUserNotFound
	}
	return u, nil
}

// SetActive flips the active flag. Admins cannot be deactivated.
func (s *MemoryStore) SetActive(_ context.Context, userID string, active bool) (authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return authcore.User{}, authcore.ErrUserNotFound
	}
	if !active && u.Role == authcore.RoleAdmin {
		return authcore.User{}, ErrProtectedUser
	}
	u.IsActive = active
	s.byID[userID] = u
	return u, nil
}

// UpdatePasswordHash replaces the stored hash of userID.
func (s *MemoryStore) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	if newHash == "" {
		return ErrInvalidUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	u.PasswordHash = newHash
	s.byID[userID] = u
	return nil
}

// Delete removes a user. Unknown IDs return authcore.ErrUserNotFound.
func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	delete(s.byID, userID)
	delete(s.byName, u.Username)
	return nil
}

// List returns every user ordered by ID.
func (s *MemoryStore) List(_ context.Context) []authcore.User {
	s.mu.RLock()
	out := make([]authcore.User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
