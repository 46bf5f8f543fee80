package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func throttleConfig() Config {
	cfg := testConfig()
	cfg.Security.EnableLoginThrottle = true
	cfg.Security.MaxLoginAttempts = 3
	cfg.Security.LoginCooldownDuration = time.Minute
	cfg.Metrics.Enabled = true
	return cfg
}

func TestLoginThrottleBlocksAfterBudget(t *testing.T) {
	mr, rdb := newTestRedis(t)
	engine := buildTestEngine(t, throttleConfig(), demoUsers(t), newTestClock(), func(b *Builder) {
		b.WithRedis(rdb)
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := engine.Login(ctx, "user1", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
	}

	// The correct password is refused while the window is open.
	if _, err := engine.Login(ctx, "user1", "user123"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricLoginRateLimited]; got != 1 {
		t.Fatalf("expected one rate-limited login, got %d", got)
	}

	// Other accounts are unaffected.
	if _, err := engine.Login(ctx, "admin", "admin123"); err != nil {
		t.Fatalf("admin login failed: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if _, err := engine.Login(ctx, "user1", "user123"); err != nil {
		t.Fatalf("login after cooldown failed: %v", err)
	}
}

func TestLoginThrottleResetsOnSuccess(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine := buildTestEngine(t, throttleConfig(), demoUsers(t), newTestClock(), func(b *Builder) {
		b.WithRedis(rdb)
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = engine.Login(ctx, "user1", "wrong-password")
	}
	if _, err := engine.Login(ctx, "user1", "user123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, _ = engine.Login(ctx, "user1", "wrong-password")
	}
	if _, err := engine.Login(ctx, "user1", "user123"); err != nil {
		t.Fatalf("expected counter reset after success, got %v", err)
	}
}

func TestLoginThrottleStoreDownIsUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	engine := buildTestEngine(t, throttleConfig(), demoUsers(t), newTestClock(), func(b *Builder) {
		b.WithRedis(rdb)
	})
	mr.Close()

	_, err := engine.Login(context.Background(), "user1", "user123")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	s := engine.MetricsSnapshot().Counters
	if s[MetricLoginFailure] != 0 || s[MetricLoginRateLimited] != 0 {
		t.Fatal("store failure must not count as a login failure")
	}
}
