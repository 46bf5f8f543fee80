// Package rate provides the Redis-backed failed-login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on the first hit. Key layout:
//   - <prefix>:u:<username>  per-username failures
//   - <prefix>:ip:<ip>       per-IP failures (optional)
//
// Once a counter reaches MaxLoginAttempts further attempts are rejected until the window
// expires. A successful login clears both counters.
package rate
