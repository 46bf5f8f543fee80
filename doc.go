// Package authcore is a JWT authentication core: credential login, short-lived signed
// access tokens, rotating single-use refresh tokens, access-token revocation and a
// role gate.
//
// Engine methods are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Token lifecycle
//
// Login issues an access/refresh pair and records the refresh jti in a [registry.Registry].
// Refresh consumes that jti atomically and records the replacement; presenting a consumed
// jti again is reported as [ErrReplayDetected]. Logout blacklists the access token in a
// [revocation.List] and deletes the refresh entry. VerifyAccess re-checks the subject's
// active flag on every call, so deactivating a user takes effect immediately unless
// Session.ActiveCacheTTL is set.
//
// # Storage
//
// Without explicit stores the engine keeps state in memory. [Builder.WithRedis] switches
// both stores to Redis and enables the login throttle; the registry package also provides
// SQLite and Postgres backends.
//
// # Failures
//
// Every error maps to one [ErrorKind] via [KindOf]. Backend failures and timeouts are
// always [ErrStoreUnavailable], never an authentication failure.
package authcore
