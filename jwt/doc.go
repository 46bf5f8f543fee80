// Package jwt encodes and verifies the signed access and refresh tokens.
//
// One [Manager] exists per token type. Access and refresh managers must be built with
// distinct keys (see [NewPair]) so a token of one type never verifies as the other; the
// token_type claim is checked as well.
//
// Decode failures are classified into [ErrMalformed], [ErrBadSignature], and [ErrExpired].
// Expiry is inclusive: a token whose exp equals the current time is rejected.
//
// This package performs no I/O and does not know about revocation or the refresh registry.
package jwt
