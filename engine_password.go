package authcore

import (
	"context"
	"errors"
	"fmt"
)

// ChangePassword replaces userID's password after verifying oldPassword, then revokes
// every refresh session of the user. Access tokens already issued stay valid until they
// expire.
//
// It returns ErrInvalidCredentials for a wrong old password, ErrPasswordReuse when the
// new password equals the current one, ErrPasswordPolicy when the new password is out of
// bounds, and ErrAccountDisabled for inactive or unknown users. The UserProvider must
// implement PasswordUpdater.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) (int, error) {
	if e == nil || e.passwords == nil || e.users == nil {
		return 0, ErrEngineNotReady
	}
	updater, ok := e.users.(PasswordUpdater)
	if !ok {
		return 0, ErrPasswordChangeUnsupported
	}

	fail := func(reason string, err error) (int, error) {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, SeverityWarning, false, userID, "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return 0, err
	}

	if userID == "" || oldPassword == "" || newPassword == "" {
		return fail("invalid_input", ErrPasswordPolicy)
	}

	user, err := e.userByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fail("user_not_found", ErrAccountDisabled)
		}
		return 0, e.storeFailure(ctx, "change_password", userID, err)
	}
	if !user.Active {
		return fail("account_disabled", ErrAccountDisabled)
	}

	if ok, err := e.passwords.Verify(oldPassword, user.PasswordHash); err != nil || !ok {
		return fail("invalid_old_password", ErrInvalidCredentials)
	}
	if same, err := e.passwords.Verify(newPassword, user.PasswordHash); err == nil && same {
		return fail("password_reuse", ErrPasswordReuse)
	}

	newHash, err := e.passwords.Hash(newPassword)
	if err != nil {
		return fail("hash_policy", fmt.Errorf("%w: %w", ErrPasswordPolicy, err))
	}

	sctx, cancel := e.storeCtx(ctx)
	err = updater.UpdatePasswordHash(sctx, userID, newHash)
	cancel()
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fail("user_not_found", ErrAccountDisabled)
		}
		return 0, e.storeFailure(ctx, "change_password", userID, err)
	}

	revoked, err := e.RevokeAllSessions(ctx, userID)
	if err != nil {
		return 0, err
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChanged, SeverityWarning, true, userID, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": fmt.Sprint(revoked)}
	})
	return revoked, nil
}
