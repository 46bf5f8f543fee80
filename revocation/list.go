package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures.
var ErrUnavailable = errors.New("revocation list unavailable")

// Entry is one blacklisted token.
type Entry struct {
	Hash      string    `json:"hash"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// List is the access-token blacklist.
type List interface {
	// Revoke blacklists token until expiresAt. Revoking twice is a no-op and tokens that
	// have already expired are not stored.
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	// Len counts entries that are still in force.
	Len(ctx context.Context) (int, error)
}

// Hash returns the storage key for a raw token.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
