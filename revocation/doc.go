// Package revocation blacklists access tokens before their natural expiry.
//
// Tokens are keyed by the hex SHA-256 of the raw token string; the raw value is never
// stored. An entry only needs to outlive the token it blocks, so every backend drops
// entries once ExpiresAt passes.
package revocation
