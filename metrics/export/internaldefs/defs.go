package internaldefs

import (
	"strings"

	"github.com/MrEthical07/authcore"
)

// Source is what every exporter reads. *authcore.Engine implements it.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

const (
	// Prefix is shared by every exported metric name.
	Prefix = "authcore_"

	AuditDroppedName = "authcore_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// CounterDefs lists the exported counters in output order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Logins rejected for bad credentials or a disabled account."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Logins refused by the throttle."},
	{ID: authcore.MetricVerifySuccess, Name: "authcore_verify_success_total", Help: "Access tokens accepted."},
	{ID: authcore.MetricVerifyFailure, Name: "authcore_verify_failure_total", Help: "Access tokens rejected."},
	{ID: authcore.MetricTokenMalformed, Name: "authcore_token_malformed_total", Help: "Tokens that could not be parsed."},
	{ID: authcore.MetricTokenBadSignature, Name: "authcore_token_bad_signature_total", Help: "Tokens with an invalid signature or wrong type."},
	{ID: authcore.MetricTokenExpired, Name: "authcore_token_expired_total", Help: "Expired tokens."},
	{ID: authcore.MetricTokenRevoked, Name: "authcore_token_revoked_total", Help: "Access tokens found on the revocation list."},
	{ID: authcore.MetricAccountDisabled, Name: "authcore_account_disabled_total", Help: "Requests rejected because the subject is inactive."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: authcore.MetricReplayDetected, Name: "authcore_replay_detected_total", Help: "Refresh tokens presented after rotation or revocation."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Refresh sessions registered."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logouts that revoked at least one token."},
	{ID: authcore.MetricRevokeAllSessions, Name: "authcore_revoke_all_sessions_total", Help: "Revoke-all operations."},
	{ID: authcore.MetricStoreUnavailable, Name: "authcore_store_unavailable_total", Help: "Operations failed by an unreachable store."},
	{ID: authcore.MetricActiveCacheHit, Name: "authcore_active_cache_hit_total", Help: "Active checks answered from the cache."},
	{ID: authcore.MetricPasswordChanged, Name: "authcore_password_changed_total", Help: "Completed password changes."},
	{ID: authcore.MetricPasswordChangeFailure, Name: "authcore_password_change_failure_total", Help: "Password changes rejected for a wrong current password or policy."},
	{ID: authcore.MetricPasswordRehashed, Name: "authcore_password_rehashed_total", Help: "Outdated password hashes upgraded at login."},
}

// HistogramDefs lists the exported histograms.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "VerifyAccess latency."},
}

// HistogramBounds are the bucket upper bounds in seconds, as Prometheus labels.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are HistogramBounds made safe for instrument and field names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// ShortName strips Prefix, for sinks that carry the namespace elsewhere.
func ShortName(name string) string {
	return strings.TrimPrefix(name, Prefix)
}

// NormalizeBuckets copies raw into a fixed-size array; missing buckets are zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
