package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisList stores one key per revoked token with a TTL equal to the token's remaining
// lifetime, so Redis does the pruning.
type RedisList struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis creates a list under the given key prefix ("rv" when empty).
func NewRedis(client redis.UniversalClient, prefix string, now func() time.Time) *RedisList {
	if prefix == "" {
		prefix = "rv"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisList{redis: client, prefix: prefix, now: now}
}

func (l *RedisList) key(token string) string {
	return l.prefix + ":" + Hash(token)
}

// Revoke uses SET NX so a repeated revoke keeps the original revoked_at.
//
//	Performance: 1 SET.
func (l *RedisList) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	now := l.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	if err := l.redis.SetNX(ctx, l.key(token), now.UnixMilli(), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *RedisList) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := l.redis.Exists(ctx, l.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// Len scans the key space under the prefix. Intended for admin views, not hot paths.
func (l *RedisList) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := l.redis.Scan(ctx, cursor, l.prefix+":*", 500).Result()
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}
