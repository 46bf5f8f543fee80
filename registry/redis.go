package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusRotated  int64 = 2
)

const touchScript = `
local exp = redis.call("HGET", KEYS[1], "expires_at")
if not exp then
  return 0
end
if tonumber(exp) <= tonumber(ARGV[1]) then
  local owner = redis.call("HGET", KEYS[1], "user_id")
  redis.call("DEL", KEYS[1])
  if owner then
    redis.call("SREM", ARGV[2] .. owner, ARGV[3])
  end
  return 0
end
redis.call("HSET", KEYS[1], "last_used_at", ARGV[1])
return 1
`

var touchLua = redis.NewScript(touchScript)

const rotateScript = `
local owner = redis.call("HGET", KEYS[1], "user_id")
if not owner or owner ~= ARGV[2] then
  return 0
end

local exp = tonumber(redis.call("HGET", KEYS[1], "expires_at") or "0")
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[3], ARGV[1])
if exp <= tonumber(ARGV[4]) then
  return 1
end

redis.call("HSET", KEYS[2],
  "user_id", ARGV[2],
  "created_at", ARGV[4],
  "last_used_at", ARGV[4],
  "expires_at", ARGV[5])
redis.call("PEXPIRE", KEYS[2], ARGV[6])
redis.call("SADD", KEYS[3], ARGV[3])
return 2
`

var rotateLua = redis.NewScript(rotateScript)

const revokeScript = `
local owner = redis.call("HGET", KEYS[1], "user_id")
if not owner then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. owner, ARGV[2])
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// Entry keys are derived inside the script from the user's set, so on a cluster the
// prefix must hash-tag entries and sets into the same slot.
const revokeAllScript = `
local members = redis.call("SMEMBERS", KEYS[1])
local count = 0
for _, jti in ipairs(members) do
  local key = ARGV[1] .. jti
  local exp = redis.call("HGET", key, "expires_at")
  if exp then
    if tonumber(exp) > tonumber(ARGV[2]) then
      count = count + 1
    end
    redis.call("DEL", key)
  end
end
redis.call("DEL", KEYS[1])
return count
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// RedisRegistry stores one hash per jti plus a set of jtis per user. Every mutation that
// reads before it writes runs as a Lua script, so Rotate is a single compare-and-delete.
type RedisRegistry struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis creates a registry under the given key prefix ("rt" when empty).
func NewRedis(client redis.UniversalClient, prefix string, now func() time.Time) *RedisRegistry {
	if prefix == "" {
		prefix = "rt"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisRegistry{redis: client, prefix: prefix, now: now}
}

func (r *RedisRegistry) entryPrefix() string {
	return r.prefix + ":jti:"
}

func (r *RedisRegistry) userPrefix() string {
	return r.prefix + ":user:"
}

func (r *RedisRegistry) key(jti string) string {
	return r.entryPrefix() + jti
}

func (r *RedisRegistry) userKey(userID string) string {
	return r.userPrefix() + userID
}

// Register persists the entry and indexes it under its user.
//
//	Performance: 1 MULTI/EXEC (HSET + PEXPIRE + SADD).
func (r *RedisRegistry) Register(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	if err := validateEntry(jti, userID, expiresAt); err != nil {
		return err
	}
	now := r.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}

	key := r.key(jti)
	nowMS := now.UnixMilli()
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", userID,
			"created_at", nowMS,
			"last_used_at", nowMS,
			"expires_at", expiresAt.UnixMilli(),
		)
		pipe.PExpire(ctx, key, ttl)
		pipe.SAdd(ctx, r.userKey(userID), jti)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// TouchIfLive bumps last_used_at atomically.
//
//	Performance: 1 EVALSHA.
func (r *RedisRegistry) TouchIfLive(ctx context.Context, jti string) (bool, error) {
	res, err := touchLua.Run(ctx, r.redis, []string{r.key(jti)}, r.now().UnixMilli(), r.userPrefix(), jti).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res == 1, nil
}

// Rotate consumes oldJTI and registers next in one script.
//
//	Performance: 1 EVALSHA (atomic compare-and-delete).
//	Security: exactly one concurrent caller per oldJTI observes rotateStatusRotated.
func (r *RedisRegistry) Rotate(ctx context.Context, oldJTI, userID string, next Entry) (Entry, error) {
	if err := validateEntry(next.JTI, next.UserID, next.ExpiresAt); err != nil {
		return Entry{}, err
	}
	now := r.now()
	ttl := next.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return Entry{}, ErrInvalidEntry
	}

	code, err := rotateLua.Run(
		ctx,
		r.redis,
		[]string{r.key(oldJTI), r.key(next.JTI), r.userKey(userID)},
		oldJTI,
		userID,
		next.JTI,
		now.UnixMilli(),
		next.ExpiresAt.UnixMilli(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch code {
	case rotateStatusNotFound:
		return Entry{}, ErrNotLive
	case rotateStatusExpired:
		return Entry{}, fmt.Errorf("%w: expired", ErrNotLive)
	case rotateStatusRotated:
		next.UserID = userID
		next.CreatedAt = time.UnixMilli(now.UnixMilli())
		next.LastUsedAt = next.CreatedAt
		return next, nil
	default:
		return Entry{}, fmt.Errorf("%w: unknown rotate script status %d", ErrUnavailable, code)
	}
}

func (r *RedisRegistry) Revoke(ctx context.Context, jti string) error {
	if err := revokeLua.Run(ctx, r.redis, []string{r.key(jti)}, r.userPrefix(), jti).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisRegistry) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	count, err := revokeAllLua.Run(ctx, r.redis, []string{r.userKey(userID)}, r.entryPrefix(), r.now().UnixMilli()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(count), nil
}

// ListForUser reads the user's set and fetches every entry in one pipeline.
func (r *RedisRegistry) ListForUser(ctx context.Context, userID string) ([]Entry, error) {
	jtis, err := r.redis.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(jtis) == 0 {
		return []Entry{}, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(jtis))
	for i, jti := range jtis {
		cmds[i] = pipe.HGetAll(ctx, r.key(jti))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := r.now()
	out := make([]Entry, 0, len(jtis))
	for i, cmd := range cmds {
		fields, cmdErr := cmd.Result()
		if cmdErr != nil || len(fields) == 0 {
			continue
		}
		e, ok := entryFromHash(jtis[i], fields)
		if !ok || !e.Live(now) {
			continue
		}
		out = append(out, e)
	}

	sortEntries(out)
	return out, nil
}

// Prune drops index members whose entry hash has already expired out of Redis. Entry
// hashes themselves carry a TTL and need no sweeping.
func (r *RedisRegistry) Prune(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	pattern := r.userPrefix() + "*"

	for {
		keys, next, err := r.redis.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, userKey := range keys {
			n, err := r.pruneUserSet(ctx, userKey)
			if err != nil {
				return removed, err
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

func (r *RedisRegistry) pruneUserSet(ctx context.Context, userKey string) (int, error) {
	jtis, err := r.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(jtis) == 0 {
		return 0, nil
	}

	pipe := r.redis.Pipeline()
	exists := make([]*redis.IntCmd, len(jtis))
	for i, jti := range jtis {
		exists[i] = pipe.Exists(ctx, r.key(jti))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	stale := make([]interface{}, 0)
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			stale = append(stale, jtis[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := r.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return len(stale), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (r *RedisRegistry) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

func entryFromHash(jti string, fields map[string]string) (Entry, bool) {
	created, err1 := strconv.ParseInt(fields["created_at"], 10, 64)
	lastUsed, err2 := strconv.ParseInt(fields["last_used_at"], 10, 64)
	expires, err3 := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || fields["user_id"] == "" {
		return Entry{}, false
	}
	return Entry{
		JTI:        jti,
		UserID:     fields["user_id"],
		CreatedAt:  time.UnixMilli(created),
		LastUsedAt: time.UnixMilli(lastUsed),
		ExpiresAt:  time.UnixMilli(expires),
	}, true
}
