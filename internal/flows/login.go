package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// UserRecord is the flow-local user model used by login and refresh.
type UserRecord struct {
	UserID       string
	Username     string
	PasswordHash string
	Role         string
	Email        string
	Active       bool
}

// IssuedPair is a freshly minted access/refresh pair, not yet registered.
type IssuedPair struct {
	AccessToken   string
	RefreshToken  string
	AccessClaims  *jwt.Claims
	RefreshClaims *jwt.Claims
}

// RefreshJTI returns the jti the registry must hold for the refresh half.
func (p IssuedPair) RefreshJTI() string {
	if p.RefreshClaims == nil {
		return ""
	}
	return p.RefreshClaims.ID
}

// RefreshExpiresAt returns the refresh token's exp.
func (p IssuedPair) RefreshExpiresAt() time.Time {
	if p.RefreshClaims == nil || p.RefreshClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return p.RefreshClaims.ExpiresAt.Time
}

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureThrottleStore
	LoginFailureUserStore
	LoginFailureUnknownUser
	LoginFailurePasswordMismatch
	LoginFailureDisabled
	LoginFailureIssue
	LoginFailureRegister
)

// LoginResult carries either the registered pair or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	UserID  string
	User    UserRecord
	Pair    IssuedPair
	// Rehashed is set when the stored hash was upgraded during this login.
	Rehashed bool
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	ClientIPFromContext func(context.Context) string

	// Throttle hooks are optional; nil disables throttling.
	CheckLoginRate     func(context.Context, string, string) error
	IncrementLoginRate func(context.Context, string, string) error
	ResetLoginRate     func(context.Context, string, string) error
	RateLimited        error

	GetUserByUsername func(context.Context, string) (UserRecord, error)
	UserNotFound      error

	VerifyPassword func(string, string) (bool, error)
	VerifyDummy    func(string)

	// Rehash hooks are optional; nil UpdatePasswordHash disables upgrade on login.
	PasswordNeedsUpgrade func(string) (bool, error)
	HashPassword         func(string) (string, error)
	UpdatePasswordHash   func(context.Context, string, string) error

	MintPair        func(UserRecord) (IssuedPair, error)
	RegisterRefresh func(context.Context, IssuedPair) error

	Warn func(string, ...any)
}

// RunLogin authenticates username/password and registers a new refresh session.
//
// The password is always verified before the active flag is consulted, and unknown users
// burn a dummy verification, so neither timing nor error reveals which usernames exist.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) LoginResult {
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, username, ip); err != nil {
			return throttleFailure(err, deps)
		}
	}

	// recordFailure bumps the throttle counter; a tripped counter turns the failure into a
	// rate-limit response.
	recordFailure := func(kind LoginFailureKind, userID string, cause error) LoginResult {
		if deps.IncrementLoginRate != nil {
			if err := deps.IncrementLoginRate(ctx, username, ip); err != nil {
				res := throttleFailure(err, deps)
				res.UserID = userID
				return res
			}
		}
		return LoginResult{Failure: kind, Err: cause, UserID: userID}
	}

	user, err := deps.GetUserByUsername(ctx, username)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			deps.VerifyDummy(password)
			return recordFailure(LoginFailureUnknownUser, "", err)
		}
		return LoginResult{Failure: LoginFailureUserStore, Err: err}
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return recordFailure(LoginFailurePasswordMismatch, user.UserID, err)
	}

	if !user.Active {
		return LoginResult{Failure: LoginFailureDisabled, UserID: user.UserID, User: user}
	}

	rehashed := upgradeHash(ctx, user, password, deps)
	password = ""

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, username, ip); err != nil {
			deps.Warn("authcore: login throttle reset failed", "error", err)
		}
	}

	pair, err := deps.MintPair(user)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, UserID: user.UserID, User: user}
	}

	if err := deps.RegisterRefresh(ctx, pair); err != nil {
		return LoginResult{Failure: LoginFailureRegister, Err: err, UserID: user.UserID, User: user}
	}

	return LoginResult{
		Failure:  LoginFailureNone,
		UserID:   user.UserID,
		User:     user,
		Pair:     pair,
		Rehashed: rehashed,
	}
}

// upgradeHash replaces an outdated stored hash. Failures are logged and never fail the
// login.
func upgradeHash(ctx context.Context, user UserRecord, password string, deps LoginDeps) bool {
	if deps.UpdatePasswordHash == nil || deps.PasswordNeedsUpgrade == nil || deps.HashPassword == nil {
		return false
	}
	needs, err := deps.PasswordNeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return false
	}
	hash, err := deps.HashPassword(password)
	if err != nil {
		deps.Warn("authcore: password hash upgrade generation failed", "user_id", user.UserID, "error", err)
		return false
	}
	if err := deps.UpdatePasswordHash(ctx, user.UserID, hash); err != nil {
		deps.Warn("authcore: password hash upgrade update failed", "user_id", user.UserID, "error", err)
		return false
	}
	return true
}

func throttleFailure(err error, deps LoginDeps) LoginResult {
	if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
		return LoginResult{Failure: LoginFailureRateLimited, Err: err}
	}
	return LoginResult{Failure: LoginFailureThrottleStore, Err: err}
}
