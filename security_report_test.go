package authcore

import (
	"slices"
	"testing"
	"time"
)

func TestSecurityReportReflectsConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Session.ActiveCacheTTL = 5 * time.Second
	cfg.Audit.Enabled = true
	engine := buildTestEngine(t, cfg, &mockUserProvider{users: map[string]User{}}, newTestClock())

	r := engine.SecurityReport()
	if r.SigningAlgorithm != "hs256" || r.AccessTTL != cfg.JWT.AccessTTL || r.RefreshTTL != cfg.JWT.RefreshTTL {
		t.Fatalf("unexpected token settings %+v", r)
	}
	if r.ActiveCacheTTL != 5*time.Second || !r.AuditEnabled {
		t.Fatalf("unexpected session/audit settings %+v", r)
	}
	if r.LoginThrottleActive || r.IPThrottleActive {
		t.Fatal("throttle should be inactive without redis")
	}
	if r.Argon2.Memory != cfg.Password.Memory {
		t.Fatalf("expected argon2 memory %d, got %d", cfg.Password.Memory, r.Argon2.Memory)
	}
	for _, code := range []string{"argon2_memory_low", "active_cache_enabled", "rate_limits_disabled"} {
		if !slices.Contains(r.LintCodes, code) {
			t.Fatalf("expected lint code %q in %v", code, r.LintCodes)
		}
	}
}

func TestSecurityReportThrottle(t *testing.T) {
	_, client := newTestRedis(t)

	cfg := testConfig()
	cfg.Security.EnableLoginThrottle = true
	cfg.Security.EnableIPThrottle = true
	engine := buildTestEngine(t, cfg, &mockUserProvider{users: map[string]User{}}, newTestClock(), func(b *Builder) {
		b.WithRedis(client)
	})

	r := engine.SecurityReport()
	if !r.LoginThrottleActive || !r.IPThrottleActive {
		t.Fatalf("expected throttle active, got %+v", r)
	}
}

func TestSecurityReportNilEngine(t *testing.T) {
	var e *Engine
	if r := e.SecurityReport(); r.SigningAlgorithm != "" || r.LintCodes != nil {
		t.Fatalf("expected zero report, got %+v", r)
	}
}
