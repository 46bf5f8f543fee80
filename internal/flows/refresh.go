package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/jwt"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureUserStore
	RefreshFailureDisabled
	RefreshFailureIssue
	RefreshFailureReuse
	RefreshFailureRotate
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	OldJTI  string
	Pair    IssuedPair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	DecodeRefresh func(string) (*jwt.Claims, error)
	// TouchIfLive reports whether the presented jti is still registered. A consumed jti is
	// replay regardless of the owner's current state.
	TouchIfLive  func(context.Context, string) (bool, error)
	GetUserByID  func(context.Context, string) (UserRecord, error)
	UserNotFound error
	// RevokeRefresh drops the presented jti when its owner can no longer log in.
	RevokeRefresh func(context.Context, string) error
	MintPair      func(UserRecord) (IssuedPair, error)
	// Rotate consumes oldJTI and registers the new refresh half in one atomic step.
	Rotate  func(ctx context.Context, oldJTI, userID string, next IssuedPair) error
	NotLive error
	Warn    func(string, ...any)
}

// RunRefresh verifies a refresh token, mints its replacement and rotates the registry.
// The replacement is minted before the rotation so a successful rotation always has a pair
// to return.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	claims, err := deps.DecodeRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	userID, oldJTI := claims.Subject, claims.ID

	if deps.TouchIfLive != nil {
		live, err := deps.TouchIfLive(ctx, oldJTI)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureRotate, Err: err, UserID: userID, OldJTI: oldJTI}
		}
		if !live {
			return RefreshResult{Failure: RefreshFailureReuse, Err: deps.NotLive, UserID: userID, OldJTI: oldJTI}
		}
	}

	user, err := deps.GetUserByID(ctx, userID)
	switch {
	case err != nil && deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound):
		user = UserRecord{UserID: userID}
	case err != nil:
		return RefreshResult{Failure: RefreshFailureUserStore, Err: err, UserID: userID, OldJTI: oldJTI}
	}

	if !user.Active {
		if revokeErr := deps.RevokeRefresh(ctx, oldJTI); revokeErr != nil {
			deps.Warn("authcore: refresh revoke for disabled account failed", "error", revokeErr)
		}
		return RefreshResult{Failure: RefreshFailureDisabled, UserID: userID, OldJTI: oldJTI}
	}

	pair, err := deps.MintPair(user)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: userID, OldJTI: oldJTI}
	}

	if err := deps.Rotate(ctx, oldJTI, userID, pair); err != nil {
		if deps.NotLive != nil && errors.Is(err, deps.NotLive) {
			return RefreshResult{Failure: RefreshFailureReuse, Err: err, UserID: userID, OldJTI: oldJTI}
		}
		return RefreshResult{Failure: RefreshFailureRotate, Err: err, UserID: userID, OldJTI: oldJTI}
	}

	return RefreshResult{
		Failure: RefreshFailureNone,
		UserID:  userID,
		OldJTI:  oldJTI,
		Pair:    pair,
	}
}
