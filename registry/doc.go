// Package registry tracks which refresh tokens are still usable.
//
// Every issued refresh token has one Entry keyed by its jti. A token is accepted for
// rotation only while its entry exists and has not expired, and Rotate consumes the old
// entry atomically, so a refresh token can be exchanged at most once.
//
// Three backends are provided: MemoryRegistry for single-process deployments and tests,
// RedisRegistry (Lua compare-and-delete), and SQLRegistry for SQLite or PostgreSQL.
package registry
