package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestActiveCacheSkipsMarkAfterInvalidate(t *testing.T) {
	clock := newTestClock()
	c := newActiveCache(10*time.Second, clock.Now)

	gen := c.generation()
	c.invalidate("2")
	c.markActive("2", gen)
	if c.hit("2") {
		t.Fatal("a lookup that raced an invalidate must not be cached")
	}

	c.markActive("2", c.generation())
	if !c.hit("2") {
		t.Fatal("expected a cache hit after a clean lookup")
	}
	clock.Advance(10 * time.Second)
	if c.hit("2") {
		t.Fatal("expected the entry to expire at ttl")
	}
}

func TestActiveCacheDisabledIsNil(t *testing.T) {
	c := newActiveCache(0, time.Now)
	if c != nil {
		t.Fatal("expected ttl 0 to disable the cache")
	}
	c.markActive("1", c.generation())
	c.invalidate("1")
	if c.hit("1") {
		t.Fatal("nil cache must never hit")
	}
}

// lookupHookProvider runs afterLookup once, between the store read and the engine's
// cache update.
type lookupHookProvider struct {
	*mockUserProvider
	afterLookup func(userID string)
}

func (p *lookupHookProvider) GetUserByID(ctx context.Context, userID string) (User, error) {
	u, err := p.mockUserProvider.GetUserByID(ctx, userID)
	if hook := p.afterLookup; hook != nil {
		p.afterLookup = nil
		hook(userID)
	}
	return u, err
}

func TestInvalidateDuringLookupIsImmediate(t *testing.T) {
	cfg := testConfig()
	cfg.Session.ActiveCacheTTL = 10 * time.Second

	up := &lookupHookProvider{mockUserProvider: demoUsers(t)}
	engine := buildTestEngine(t, cfg, up, newTestClock())
	ctx := context.Background()

	pair, err := engine.Login(ctx, "user1", "user123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	up.afterLookup = func(userID string) {
		up.setActive(userID, false)
		engine.InvalidateUser(userID)
	}
	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("verify that read the active record should pass, got %v", err)
	}

	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected deactivation to be visible on the next verify, got %v", err)
	}
}
