package registry

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotLive is returned by Rotate when the presented jti has no live entry for the user.
	// Callers treat it as refresh-token replay.
	ErrNotLive = errors.New("refresh entry not live")
	// ErrUnavailable wraps backend failures (network, driver, timeout).
	ErrUnavailable = errors.New("refresh registry unavailable")
	// ErrInvalidEntry rejects entries missing a jti, user id, or expiry.
	ErrInvalidEntry = errors.New("invalid refresh entry")
)

// Entry is the server-side record paired with one refresh token.
type Entry struct {
	JTI        string    `json:"jti"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Live reports whether the entry is still usable at now.
func (e Entry) Live(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Registry is the source of truth for refresh-token liveness. Deleting an entry is the only
// way a refresh token is revoked.
type Registry interface {
	// Register creates an entry with CreatedAt = LastUsedAt = now.
	Register(ctx context.Context, jti, userID string, expiresAt time.Time) error
	// TouchIfLive bumps LastUsedAt and returns true, or returns false and changes nothing.
	TouchIfLive(ctx context.Context, jti string) (bool, error)
	// Rotate atomically consumes oldJTI (which must be live and owned by userID) and
	// registers next in its place. Only one concurrent caller per oldJTI succeeds.
	Rotate(ctx context.Context, oldJTI, userID string, next Entry) (Entry, error)
	// Revoke deletes the entry. Unknown jtis are a no-op.
	Revoke(ctx context.Context, jti string) error
	// RevokeAllForUser deletes every entry of userID and reports how many were live.
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	// ListForUser returns the live entries of userID ordered by creation time.
	ListForUser(ctx context.Context, userID string) ([]Entry, error)
	// Prune removes expired entries.
	Prune(ctx context.Context) (int, error)
}

// Pinger is implemented by registries backed by a remote store.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

func validateEntry(jti, userID string, expiresAt time.Time) error {
	if jti == "" || userID == "" || expiresAt.IsZero() {
		return ErrInvalidEntry
	}
	return nil
}
