package authcore

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks configuration warnings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is one finding about a configuration that is valid but questionable.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list of findings from Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError returns an error listing every warning at or above min, or nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// Lint reports settings that Validate accepts but that weaken the deployment.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", LintWarn, "JWT leeway above one minute extends every token's lifetime")
	}
	if c.JWT.AccessTTL > 0 && c.JWT.Leeway >= c.JWT.AccessTTL {
		add("leeway_exceeds_access_ttl", LintHigh, "JWT leeway is at least the access TTL; expiry is effectively doubled")
	}
	if c.JWT.AccessTTL >= 15*time.Minute {
		add("access_ttl_long", LintInfo, "access tokens are not revocable between logout and expiry; keep AccessTTL short")
	}
	if c.JWT.RefreshTTL > 14*24*time.Hour {
		add("refresh_ttl_long", LintWarn, "refresh TTL above 14 days")
	}
	if c.JWT.SigningMethod == "hs256" {
		add("signing_hs256", LintInfo, "hs256 shares the verification secret with every verifier; prefer ed25519 across services")
	}
	if c.JWT.Issuer == "" {
		add("issuer_empty", LintInfo, "tokens carry no issuer")
	}

	if c.Session.ActiveCacheTTL > 0 {
		add("active_cache_enabled", LintInfo, fmt.Sprintf("deactivated users keep access for up to %s", c.Session.ActiveCacheTTL))
	}

	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "argon2id memory below 64 MB")
	}

	if !c.Security.EnableLoginThrottle {
		add("rate_limits_disabled", LintWarn, "login throttle disabled; online password guessing is unbounded")
	}

	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events (including replay detection) are not recorded")
	}

	if c.StoreTimeout > 10*time.Second {
		add("store_timeout_long", LintWarn, "store timeout above 10s lets a slow backend pin request goroutines")
	}

	return ws
}
