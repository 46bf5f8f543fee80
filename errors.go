package authcore

import (
	"errors"

	"github.com/MrEthical07/authcore/jwt"
)

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned once the caller has proven the password, or when a
	// token's subject has been deactivated or deleted.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrUserNotFound is returned by UserProvider implementations for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrLoginRateLimited is returned while the login throttle is engaged.
	ErrLoginRateLimited = errors.New("login rate limited")

	// Codec failures. These are the jwt package sentinels, re-exported so callers can
	// match on them without importing jwt.
	ErrTokenMalformed    = jwt.ErrMalformed
	ErrTokenBadSignature = jwt.ErrBadSignature
	ErrTokenExpired      = jwt.ErrExpired

	ErrTokenRevoked = errors.New("token revoked")
	// ErrInvalidOrExpiredToken is the uniform refresh failure. It wraps the codec error.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired refresh token")
	// ErrReplayDetected means a refresh token was presented after it had been rotated or
	// revoked.
	ErrReplayDetected = errors.New("refresh token replay detected")
	ErrForbidden      = errors.New("forbidden")
	// ErrStoreUnavailable wraps registry, revocation-list, throttle and user-store failures
	// (including timeouts). It never means the caller failed authentication.
	ErrStoreUnavailable = errors.New("auth store unavailable")
	ErrEngineNotReady   = errors.New("engine not initialized")

	// ErrPasswordPolicy rejects an empty or out-of-bounds new password.
	ErrPasswordPolicy = errors.New("password does not meet policy")
	// ErrPasswordReuse rejects a password change to the current password.
	ErrPasswordReuse = errors.New("new password must differ from the current one")
	// ErrPasswordChangeUnsupported means the UserProvider does not implement
	// PasswordUpdater.
	ErrPasswordChangeUnsupported = errors.New("user provider cannot update passwords")
)

// ErrorKind is the coarse classification used for HTTP mapping, metrics and audit.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInvalidCredentials
	KindAccountDisabled
	KindMalformed
	KindBadSignature
	KindExpired
	KindRevoked
	KindReplayDetected
	KindForbidden
	KindStoreUnavailable
	KindLoginRateLimited
	KindInternal
)

var kindNames = [...]string{
	KindNone:               "none",
	KindInvalidCredentials: "invalid_credentials",
	KindAccountDisabled:    "account_disabled",
	KindMalformed:          "malformed",
	KindBadSignature:       "bad_signature",
	KindExpired:            "expired",
	KindRevoked:            "revoked",
	KindReplayDetected:     "replay_detected",
	KindForbidden:          "forbidden",
	KindStoreUnavailable:   "store_unavailable",
	KindLoginRateLimited:   "login_rate_limited",
	KindInternal:           "internal",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// KindOf classifies err. Store failures win over everything else so an outage is never
// reported as an authentication failure.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrReplayDetected):
		return KindReplayDetected
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrAccountDisabled):
		return KindAccountDisabled
	case errors.Is(err, ErrTokenRevoked):
		return KindRevoked
	case errors.Is(err, ErrTokenExpired):
		return KindExpired
	case errors.Is(err, ErrTokenBadSignature):
		return KindBadSignature
	case errors.Is(err, ErrTokenMalformed), errors.Is(err, ErrInvalidOrExpiredToken):
		return KindMalformed
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited):
		return KindLoginRateLimited
	default:
		return KindInternal
	}
}
