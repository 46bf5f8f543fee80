package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	DecodeAccess  func(string) (*jwt.Claims, error)
	DecodeRefresh func(string) (*jwt.Claims, error)
	RevokeAccess  func(context.Context, string, time.Time) error
	RevokeRefresh func(context.Context, string) error
}

// LogoutResult reports what a logout actually revoked.
type LogoutResult struct {
	UserID         string
	AccessJTI      string
	RefreshJTI     string
	AccessRevoked  bool
	RefreshRevoked bool
	Err            error
}

// RunLogout revokes whichever of the two tokens still verifies. Tokens that do not decode
// are ignored; only store failures are reported.
func RunLogout(ctx context.Context, accessToken, refreshToken string, deps LogoutDeps) LogoutResult {
	var res LogoutResult
	var errs []error

	if accessToken != "" {
		if claims, err := deps.DecodeAccess(accessToken); err == nil {
			res.UserID = claims.Subject
			res.AccessJTI = claims.ID
			if err := deps.RevokeAccess(ctx, accessToken, claims.ExpiresAt.Time); err != nil {
				errs = append(errs, err)
			} else {
				res.AccessRevoked = true
			}
		}
	}

	if refreshToken != "" {
		if claims, err := deps.DecodeRefresh(refreshToken); err == nil {
			if res.UserID == "" {
				res.UserID = claims.Subject
			}
			res.RefreshJTI = claims.ID
			if err := deps.RevokeRefresh(ctx, claims.ID); err != nil {
				errs = append(errs, err)
			} else {
				res.RefreshRevoked = true
			}
		}
	}

	res.Err = errors.Join(errs...)
	return res
}
