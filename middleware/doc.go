// Package middleware adapts authcore's gates to net/http.
//
// # Guards
//
//   - [RequireValid] verifies the bearer access token through the engine and stores the
//     claims in the request context.
//   - [RequireRole] admits only requests whose verified claims carry an allowed role.
//   - [Chain] composes them: Chain(RequireValid(engine), RequireRole(authcore.RoleAdmin)).
//
// Rejections are JSON {error_code, message, reason}. 401 responses carry a reason of
// expired, revoked, invalid or account_disabled; 403 means the role check failed and 503
// that a backing store is unreachable.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse tokens or
// touch any store; every decision is delegated to the engine.
package middleware
