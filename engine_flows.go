package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/registry"
)

// initFlows wires every flow dependency once. Each store call gets its own
// StoreTimeout-bounded context.
func (e *Engine) initFlows() {
	warn := func(msg string, args ...any) { e.logger.Warn(msg, args...) }

	login := flows.LoginDeps{
		ClientIPFromContext: clientIPFromContext,
		RateLimited:         rate.ErrRateLimited,
		GetUserByUsername:   e.userByUsername,
		UserNotFound:        ErrUserNotFound,
		VerifyPassword:      e.passwords.Verify,
		VerifyDummy:         e.passwords.VerifyDummy,
		MintPair:            e.mintPair,
		RegisterRefresh:     e.registerRefresh,
		Warn:                warn,
	}
	if updater, ok := e.users.(PasswordUpdater); ok && e.config.Password.UpgradeOnLogin {
		login.PasswordNeedsUpgrade = e.passwords.NeedsUpgrade
		login.HashPassword = e.passwords.Hash
		login.UpdatePasswordHash = func(ctx context.Context, userID, hash string) error {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return updater.UpdatePasswordHash(sctx, userID, hash)
		}
	}
	if e.limiter != nil {
		login.CheckLoginRate = func(ctx context.Context, username, ip string) error {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.limiter.CheckLogin(sctx, username, ip)
		}
		login.IncrementLoginRate = func(ctx context.Context, username, ip string) error {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.limiter.IncrementLogin(sctx, username, ip)
		}
		login.ResetLoginRate = func(ctx context.Context, username, ip string) error {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.limiter.ResetLogin(sctx, username, ip)
		}
	}

	e.flows = flows.Deps{
		Login: login,
		Verify: flows.VerifyDeps{
			DecodeAccess: e.access.Decode,
			IsRevoked: func(ctx context.Context, token string) (bool, error) {
				sctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.revoked.IsRevoked(sctx, token)
			},
			IsActive: e.isActive,
		},
		Refresh: flows.RefreshDeps{
			DecodeRefresh: e.refresh.Decode,
			TouchIfLive: func(ctx context.Context, jti string) (bool, error) {
				sctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.registry.TouchIfLive(sctx, jti)
			},
			GetUserByID:   e.userByID,
			UserNotFound:  ErrUserNotFound,
			RevokeRefresh: e.revokeRefresh,
			MintPair:      e.mintPair,
			Rotate:        e.rotateRefresh,
			NotLive:       registry.ErrNotLive,
			Warn:          warn,
		},
		Logout: flows.LogoutDeps{
			DecodeAccess:  e.access.Decode,
			DecodeRefresh: e.refresh.Decode,
			RevokeAccess: func(ctx context.Context, token string, exp time.Time) error {
				sctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.revoked.Revoke(sctx, token, exp)
			},
			RevokeRefresh: e.revokeRefresh,
		},
	}
}

func (e *Engine) userByUsername(ctx context.Context, username string) (flows.UserRecord, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	u, err := e.users.GetUserByUsername(sctx, username)
	if err != nil {
		return flows.UserRecord{}, err
	}
	return toUserRecord(u), nil
}

func (e *Engine) userByID(ctx context.Context, userID string) (flows.UserRecord, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	u, err := e.users.GetUserByID(sctx, userID)
	if err != nil {
		return flows.UserRecord{}, err
	}
	return toUserRecord(u), nil
}

func toUserRecord(u User) flows.UserRecord {
	return flows.UserRecord{
		UserID:       u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Email:        u.Email,
		Active:       u.IsActive,
	}
}

// isActive is the per-request account re-check. Unknown subjects count as inactive.
func (e *Engine) isActive(ctx context.Context, userID string) (bool, error) {
	if e.active.hit(userID) {
		e.metricInc(MetricActiveCacheHit)
		return true, nil
	}

	gen := e.active.generation()
	u, err := e.userByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	if u.Active {
		e.active.markActive(userID, gen)
	}
	return u.Active, nil
}

func (e *Engine) mintPair(u flows.UserRecord) (flows.IssuedPair, error) {
	accessClaims := &jwt.Claims{
		Username: u.Username,
		Role:     u.Role,
		Email:    u.Email,
	}
	accessClaims.Subject = u.UserID

	accessToken, err := e.access.Encode(accessClaims)
	if err != nil {
		return flows.IssuedPair{}, err
	}

	refreshClaims := &jwt.Claims{
		Username: u.Username,
	}
	refreshClaims.Subject = u.UserID

	refreshToken, err := e.refresh.Encode(refreshClaims)
	if err != nil {
		return flows.IssuedPair{}, err
	}

	return flows.IssuedPair{
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessClaims:  accessClaims,
		RefreshClaims: refreshClaims,
	}, nil
}

func (e *Engine) registerRefresh(ctx context.Context, p flows.IssuedPair) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.registry.Register(sctx, p.RefreshJTI(), p.RefreshClaims.Subject, p.RefreshExpiresAt())
}

func (e *Engine) rotateRefresh(ctx context.Context, oldJTI, userID string, next flows.IssuedPair) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	_, err := e.registry.Rotate(sctx, oldJTI, userID, registry.Entry{
		JTI:       next.RefreshJTI(),
		UserID:    userID,
		ExpiresAt: next.RefreshExpiresAt(),
	})
	return err
}

func (e *Engine) revokeRefresh(ctx context.Context, jti string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.registry.Revoke(sctx, jti)
}
