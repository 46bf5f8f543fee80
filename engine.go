package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/registry"
	"github.com/MrEthical07/authcore/revocation"
)

// Engine is the token lifecycle manager. It issues token pairs, verifies access tokens,
// rotates refresh tokens and revokes both kinds.
//
// An Engine is built once by Builder and is safe for concurrent use.
type Engine struct {
	config    Config
	access    *jwt.Manager
	refresh   *jwt.Manager
	registry  registry.Registry
	revoked   revocation.List
	users     UserProvider
	passwords *password.Verifier
	limiter   *rate.Limiter
	active    *activeCache
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
	flows     flows.Deps
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counters. It is empty when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login authenticates username/password and returns a fresh token pair.
//
// Unknown usernames and wrong passwords both return ErrInvalidCredentials. A disabled
// account returns ErrAccountDisabled, but only after the password has been proven.
func (e *Engine) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunLogin(ctx, username, password, e.flows.Login)
	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricSessionCreated)
		if res.Rehashed {
			e.metricInc(MetricPasswordRehashed)
		}
		e.emitAudit(ctx, auditEventLoginSuccess, SeverityInfo, true, res.UserID, res.Pair.RefreshJTI(), nil, nil)
		return e.tokenPair(res.Pair), nil

	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, SeverityWarning, false, res.UserID, "", ErrLoginRateLimited, func() map[string]string {
			return map[string]string{"username": username}
		})
		return nil, ErrLoginRateLimited

	case flows.LoginFailureUnknownUser, flows.LoginFailurePasswordMismatch:
		reason := "password_mismatch"
		if res.Failure == flows.LoginFailureUnknownUser {
			reason = "user_not_found"
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, SeverityWarning, false, res.UserID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"username": username, "reason": reason}
		})
		return nil, ErrInvalidCredentials

	case flows.LoginFailureDisabled:
		e.metricInc(MetricLoginFailure)
		e.metricInc(MetricAccountDisabled)
		e.emitAudit(ctx, auditEventLoginFailure, SeverityWarning, false, res.UserID, "", ErrAccountDisabled, func() map[string]string {
			return map[string]string{"username": username, "reason": "account_disabled"}
		})
		return nil, ErrAccountDisabled

	case flows.LoginFailureThrottleStore, flows.LoginFailureUserStore, flows.LoginFailureRegister:
		return nil, e.storeFailure(ctx, "login", res.UserID, res.Err)

	default:
		e.metricInc(MetricLoginFailure)
		e.logger.Error("token issuance failed", "op", "login", "user_id", res.UserID, "error", res.Err)
		return nil, fmt.Errorf("issue tokens: %w", res.Err)
	}
}

// VerifyAccess checks an access token's signature and expiry, then the revocation list,
// then that its subject is still active.
//
// Errors: ErrTokenMalformed, ErrTokenBadSignature, ErrTokenExpired, ErrTokenRevoked,
// ErrAccountDisabled, or ErrStoreUnavailable.
func (e *Engine) VerifyAccess(ctx context.Context, token string) (*Claims, error) {
	if e == nil || e.access == nil {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}

	res := flows.RunVerify(ctx, token, e.flows.Verify)

	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	switch res.Failure {
	case flows.VerifyFailureNone:
		e.metricInc(MetricVerifySuccess)
		return res.Claims, nil

	case flows.VerifyFailureDecode:
		e.metricInc(MetricVerifyFailure)
		e.countCodecFailure(res.Err)
		return nil, res.Err

	case flows.VerifyFailureRevoked:
		e.metricInc(MetricVerifyFailure)
		e.metricInc(MetricTokenRevoked)
		return nil, ErrTokenRevoked

	case flows.VerifyFailureDisabled:
		e.metricInc(MetricVerifyFailure)
		e.metricInc(MetricAccountDisabled)
		e.emitAudit(ctx, auditEventAccessRejected, SeverityWarning, false, res.Claims.Subject, res.Claims.ID, ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled

	default:
		var userID string
		if res.Claims != nil {
			userID = res.Claims.Subject
		}
		return nil, e.storeFailure(ctx, "verify", userID, res.Err)
	}
}

// Refresh exchanges a live refresh token for a new pair and consumes the old one.
//
// Every codec failure is reported as ErrInvalidOrExpiredToken (wrapping the codec error).
// A token that verifies but has already been rotated or revoked is a replay and returns
// ErrReplayDetected.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.refresh == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.metricInc(MetricSessionCreated)
		e.emitAudit(ctx, auditEventRefreshSuccess, SeverityInfo, true, res.UserID, res.Pair.RefreshJTI(), nil, func() map[string]string {
			return map[string]string{"rotated_from": res.OldJTI}
		})
		return e.tokenPair(res.Pair), nil

	case flows.RefreshFailureDecode:
		e.metricInc(MetricRefreshFailure)
		e.countCodecFailure(res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, SeverityInfo, false, "", "", res.Err, nil)
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrExpiredToken, res.Err)

	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricReplayDetected)
		e.logger.Error("refresh token replay detected",
			"event", auditEventRefreshReplayDetected,
			"user_id", res.UserID,
			"jti", res.OldJTI,
		)
		e.emitAudit(ctx, auditEventRefreshReplayDetected, SeverityCritical, false, res.UserID, res.OldJTI, ErrReplayDetected, nil)
		return nil, ErrReplayDetected

	case flows.RefreshFailureDisabled:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricAccountDisabled)
		e.emitAudit(ctx, auditEventRefreshInvalid, SeverityWarning, false, res.UserID, res.OldJTI, ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled

	case flows.RefreshFailureUserStore, flows.RefreshFailureRotate:
		return nil, e.storeFailure(ctx, "refresh", res.UserID, res.Err)

	default:
		e.metricInc(MetricRefreshFailure)
		e.logger.Error("token issuance failed", "op", "refresh", "user_id", res.UserID, "error", res.Err)
		return nil, fmt.Errorf("issue tokens: %w", res.Err)
	}
}

// Logout revokes the access token and deletes the refresh entry. Either token may be
// empty or invalid; such tokens are ignored and logging out twice is not an error. The
// only error is ErrStoreUnavailable.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if e == nil || e.access == nil {
		return ErrEngineNotReady
	}

	res := flows.RunLogout(ctx, accessToken, refreshToken, e.flows.Logout)
	if res.Err != nil {
		return e.storeFailure(ctx, "logout", res.UserID, res.Err)
	}

	if res.AccessRevoked || res.RefreshRevoked {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, SeverityInfo, true, res.UserID, res.RefreshJTI, nil, func() map[string]string {
			return map[string]string{"access_jti": res.AccessJTI}
		})
	}
	return nil
}

// RevokeAllSessions deletes every refresh entry of userID and returns how many were live.
// Access tokens already issued stay valid until they expire or are logged out, unless the
// subject is also deactivated.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	if e == nil || e.registry == nil {
		return 0, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	n, err := e.registry.RevokeAllForUser(sctx, userID)
	if err != nil {
		return 0, e.storeFailure(ctx, "revoke_all", userID, err)
	}
	e.active.invalidate(userID)

	e.metricInc(MetricRevokeAllSessions)
	e.emitAudit(ctx, auditEventRevokeAllSessions, SeverityWarning, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
	return n, nil
}

// RevokeSession deletes one refresh entry by jti. Unknown jtis are not an error.
func (e *Engine) RevokeSession(ctx context.Context, jti string) error {
	if e == nil || e.registry == nil {
		return ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.registry.Revoke(sctx, jti); err != nil {
		return e.storeFailure(ctx, "revoke_session", "", err)
	}
	e.emitAudit(ctx, auditEventRevokeSession, SeverityInfo, true, "", jti, nil, nil)
	return nil
}

// ListSessions returns the live refresh sessions of userID, oldest first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	if e == nil || e.registry == nil {
		return nil, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	entries, err := e.registry.ListForUser(sctx, userID)
	if err != nil {
		return nil, e.storeFailure(ctx, "list_sessions", userID, err)
	}

	out := make([]Session, 0, len(entries))
	for _, en := range entries {
		out = append(out, Session{
			JTI:        en.JTI,
			UserID:     en.UserID,
			CreatedAt:  en.CreatedAt,
			LastUsedAt: en.LastUsedAt,
			ExpiresAt:  en.ExpiresAt,
		})
	}
	return out, nil
}

// RevocationCount returns the number of access tokens currently blacklisted.
func (e *Engine) RevocationCount(ctx context.Context) (int, error) {
	if e == nil || e.revoked == nil {
		return 0, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	n, err := e.revoked.Len(sctx)
	if err != nil {
		return 0, e.storeFailure(ctx, "revocation_count", "", err)
	}
	return n, nil
}

type pruner interface {
	Prune(ctx context.Context) (int, error)
}

// Prune drops expired registry entries and, for backends that need it, expired
// revocation entries.
func (e *Engine) Prune(ctx context.Context) (PruneResult, error) {
	if e == nil || e.registry == nil {
		return PruneResult{}, ErrEngineNotReady
	}

	var res PruneResult
	var errs []error

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	n, err := e.registry.Prune(sctx)
	if err != nil {
		errs = append(errs, err)
	}
	res.RegistryEntries = n

	if p, ok := e.revoked.(pruner); ok {
		n, err := p.Prune(sctx)
		if err != nil {
			errs = append(errs, err)
		}
		res.RevocationEntries = n
	}

	if err := errors.Join(errs...); err != nil {
		return res, e.storeFailure(ctx, "prune", "", err)
	}
	return res, nil
}

// Ping checks the refresh registry when it is backed by a remote store and reports the
// round-trip latency. In-memory registries always succeed.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.registry == nil {
		return 0, ErrEngineNotReady
	}
	p, ok := e.registry.(registry.Pinger)
	if !ok {
		return 0, nil
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	d, err := p.Ping(sctx)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return d, nil
}

// InvalidateUser drops any cached active status for userID so the next VerifyAccess
// reads the user store. Call it after deactivating or deleting a user.
func (e *Engine) InvalidateUser(userID string) {
	if e == nil {
		return
	}
	e.active.invalidate(userID)
}

// HashPassword returns an argon2id hash suitable for User.PasswordHash.
func (e *Engine) HashPassword(password string) (string, error) {
	if e == nil || e.passwords == nil {
		return "", ErrEngineNotReady
	}
	return e.passwords.Hash(password)
}

func (e *Engine) tokenPair(p flows.IssuedPair) *TokenPair {
	return &TokenPair{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(e.access.TTL() / time.Second),
	}
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.StoreTimeout)
}

// storeFailure records a backend failure and returns it wrapped in ErrStoreUnavailable.
// Store failures are never counted as authentication failures.
func (e *Engine) storeFailure(ctx context.Context, op, userID string, err error) error {
	e.metricInc(MetricStoreUnavailable)
	e.logger.Warn("auth store unavailable", "op", op, "user_id", userID, "error", err)
	e.emitAudit(ctx, auditEventStoreUnavailable, SeverityWarning, false, userID, "", ErrStoreUnavailable, func() map[string]string {
		return map[string]string{"op": op}
	})

	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (e *Engine) countCodecFailure(err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		e.metricInc(MetricTokenExpired)
	case errors.Is(err, ErrTokenBadSignature):
		e.metricInc(MetricTokenBadSignature)
	default:
		e.metricInc(MetricTokenMalformed)
	}
}
