package authcore

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventRefreshReplayDetected = "refresh_replay_detected"
	auditEventAccessRejected        = "access_rejected"
	auditEventLogout                = "logout"
	auditEventRevokeAllSessions     = "revoke_all_sessions"
	auditEventRevokeSession         = "revoke_session"
	auditEventStoreUnavailable      = "store_unavailable"
	auditEventPasswordChanged       = "password_changed"
	auditEventPasswordChangeFailure = "password_change_failure"
)

// AuditErrorCode is the stable error label written into AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrMalformed          AuditErrorCode = "malformed"
	auditErrBadSignature       AuditErrorCode = "bad_signature"
	auditErrExpired            AuditErrorCode = "expired"
	auditErrRevoked            AuditErrorCode = "revoked"
	auditErrReplay             AuditErrorCode = "refresh_replay"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	severity AuditSeverity,
	success bool,
	userID string,
	jti string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Severity:  severity,
		UserID:    userID,
		JTI:       jti,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch KindOf(err) {
	case KindInvalidCredentials:
		return auditErrInvalidCredentials
	case KindAccountDisabled:
		return auditErrAccountDisabled
	case KindLoginRateLimited:
		return auditErrRateLimited
	case KindMalformed:
		return auditErrMalformed
	case KindBadSignature:
		return auditErrBadSignature
	case KindExpired:
		return auditErrExpired
	case KindRevoked:
		return auditErrRevoked
	case KindReplayDetected:
		return auditErrReplay
	case KindForbidden:
		return auditErrForbidden
	case KindStoreUnavailable:
		return auditErrUnavailable
	default:
		if errors.Is(err, ErrEngineNotReady) {
			return auditErrUnavailable
		}
		if errors.Is(err, ErrPasswordPolicy) || errors.Is(err, ErrPasswordReuse) {
			return auditErrPasswordPolicy
		}
		return auditErrInternal
	}
}
