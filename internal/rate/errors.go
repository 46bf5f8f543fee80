package rate

import "errors"

var (
	// ErrRateLimited is returned while a login counter is over budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
