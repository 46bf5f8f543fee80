package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/password"
)

var (
	testAccessKey  = []byte("access-secret-0123456789-abcdefghijkl")
	testRefreshKey = []byte("refresh-secret-0123456789-abcdefghijk")
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockUserProvider struct {
	mu    sync.Mutex
	users map[string]User
	err   error
}

func (m *mockUserProvider) GetUserByUsername(_ context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return User{}, m.err
	}
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *mockUserProvider) GetUserByID(_ context.Context, userID string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return User{}, m.err
	}
	u, ok := m.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserProvider) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = newHash
	m.users[userID] = u
	return nil
}

func (m *mockUserProvider) hash(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID].PasswordHash
}

func (m *mockUserProvider) setActive(userID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.IsActive = active
	m.users[userID] = u
}

func (m *mockUserProvider) delete(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
}

func (m *mockUserProvider) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.AccessKey = testAccessKey
	cfg.JWT.RefreshKey = testRefreshKey
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = 7 * 24 * time.Hour
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.MinPasswordBytes = 6
	return cfg
}

var (
	demoHashesOnce sync.Once
	demoHashes     map[string]string
	demoHashesErr  error
)

// demoUsers mirrors the demo seed: admin/admin123, user1/user123, user2/user123 (inactive).
func demoUsers(t *testing.T) *mockUserProvider {
	t.Helper()

	demoHashesOnce.Do(func() {
		h, err := password.NewArgon2(password.Config{
			Memory:           8 * 1024,
			Time:             1,
			Parallelism:      1,
			SaltLength:       16,
			KeyLength:        32,
			MinPasswordBytes: 6,
		})
		if err != nil {
			demoHashesErr = err
			return
		}
		demoHashes = map[string]string{}
		for _, pw := range []string{"admin123", "user123"} {
			hash, err := h.Hash(pw)
			if err != nil {
				demoHashesErr = err
				return
			}
			demoHashes[pw] = hash
		}
	})
	if demoHashesErr != nil {
		t.Fatalf("hash demo passwords: %v", demoHashesErr)
	}

	return &mockUserProvider{users: map[string]User{
		"1": {ID: "1", Username: "admin", PasswordHash: demoHashes["admin123"], Role: RoleAdmin, Email: "admin@example.com", IsActive: true},
		"2": {ID: "2", Username: "user1", PasswordHash: demoHashes["user123"], Role: RoleUser, Email: "user1@example.com", IsActive: true},
		"3": {ID: "3", Username: "user2", PasswordHash: demoHashes["user123"], Role: RoleUser, Email: "user2@example.com", IsActive: false},
	}}
}

func buildTestEngine(t *testing.T, cfg Config, up UserProvider, clock *testClock, configure ...func(*Builder)) *Engine {
	t.Helper()

	b := New().WithConfig(cfg).WithUserProvider(up).WithClock(clock.Now)
	for _, fn := range configure {
		fn(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func TestLoginIssuesPairWithClaims(t *testing.T) {
	clock := newTestClock()
	engine := buildTestEngine(t, testConfig(), demoUsers(t), clock)
	ctx := context.Background()

	pair, err := engine.Login(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Fatalf("expected Bearer token type, got %q", pair.TokenType)
	}
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expires_in %d", pair.ExpiresIn)
	}

	claims, err := engine.VerifyAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.Subject != "1" || claims.Username != "admin" || claims.Role != string(RoleAdmin) {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.Equal(clock.Now().Add(15*time.Minute)) {
		t.Fatalf("unexpected exp: %v", claims.ExpiresAt)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}

	sessions, err := engine.ListSessions(ctx, "1")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one registered refresh session, got %d", len(sessions))
	}
	if !sessions[0].ExpiresAt.Equal(clock.Now().Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected refresh expiry %v", sessions[0].ExpiresAt)
	}
}

func TestLoginRejectsBadCredentialsUniformly(t *testing.T) {
	engine := buildTestEngine(t, testConfig(), demoUsers(t), newTestClock())
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"unknown user", "nobody", "admin123", ErrInvalidCredentials},
		{"wrong password", "admin", "wrong-password", ErrInvalidCredentials},
		{"empty password", "admin", "", ErrInvalidCredentials},
		{"disabled with wrong password", "user2", "wrong-password", ErrInvalidCredentials},
		{"disabled with right password", "user2", "user123", ErrAccountDisabled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pair, err := engine.Login(ctx, tc.username, tc.password)
			if pair != nil {
				t.Fatal("expected no token pair")
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestVerifyAccessCodecFailures(t *testing.T) {
	clock := newTestClock()
	engine := buildTestEngine(t, testConfig(), demoUsers(t), clock)
	ctx := context.Background()

	pair, err := engine.Login(ctx, "user1", "user123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := engine.VerifyAccess(ctx, "not-a-jwt"); KindOf(err) != KindMalformed {
		t.Fatalf("expected malformed, got %v", err)
	}

	parts := strings.Split(pair.AccessToken, ".")
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]
	if _, err := engine.VerifyAccess(ctx, tampered); KindOf(err) != KindBadSignature {
		t.Fatalf("expected bad signature, got %v", err)
	}

	if _, err := engine.VerifyAccess(ctx, pair.RefreshToken); err == nil {
		t.Fatal("refresh token must not verify as an access token")
	}

	clock.Advance(15 * time.Minute)
	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected exp == now to be expired, got %v", err)
	}
}

func TestRefreshRotatesAndDetectsReplay(t *testing.T) {
	clock := newTestClock()
	engine := buildTestEngine(t, testConfig(), demoUsers(t), clock)
	ctx := context.Background()

	first, err := engine.Login(ctx, "user1", "user123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	clock.Advance(time.Minute)
	second, err := engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if second.RefreshToken == first.RefreshToken || second.AccessToken == first.AccessToken {
		t.Fatal("expected a fresh pair")
	}
	if _, err := engine.VerifyAccess(ctx, second.AccessToken); err != nil {
		t.Fatalf("rotated access token must verify: %v", err)
	}

	if _, err := engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected replay on reuse, got %v", err)
	}

	third, err := engine.Refresh(ctx, second.RefreshToken)
	if err != nil {
		t.Fatalf("second rotation failed: %v", err)
	}

	sessions, err := engine.ListSessions(ctx, "2")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected exactly one live refresh entry, got %d", len(sessions))
	}
	if _, err := engine.Refresh(ctx, third.AccessToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
}

func TestRefreshRejectsGarbageUniformly(t *testing.T) {
	clock := newTestClock()
	engine := buildTestEngine(t, testConfig(), demoUsers(t), clock)
	ctx := context.Background()

	pair, err := engine.Login(ctx, "user1", "user123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := engine.Refresh(ctx, "garbage"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
	}

	clock.Advance(7*24*time.Hour + time.Second)
	_, err = engine.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrInvalidOrExpiredToken) || !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired refresh to wrap both sentinels, got %v", err)
	}
}

func TestLogoutRevokesBothTokensIdempotently(t *testing.T) {
	engine := buildTestEngine(t, testConfig(), demoUsers(t), newTestClock())
	ctx := context.Background()

	pair, err := engine.Login(ctx, "user1", "user123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := engine.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if err := engine.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("second logout must be a no-op, got %v", err)
	}
	if err := engine.Logout(ctx, "garbage", ""); err != nil {
		t.Fatalf("invalid tokens must be ignored, got %v", err)
	}

	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked after logout, got %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected refresh after logout to be rejected as replay, got %v", err)
	}

	n, err := engine.RevocationCount(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one revoked token, got %d (%v)", n, err)
	}
}

func TestDeactivationTakesEffectImmediately(t *testing.T) {
	up := demoUsers(t)
	engine := buildTestEngine(t, testConfig(), up, newTestClock())
	ctx := context.Background()

	pair, err := engine.Login(ctx, "user1", "user123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	up.setActive("2", false)

	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled on refresh, got %v", err)
	}

	// The disabled refresh attempt dropped the entry.
	up.setActive("2", true)
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected consumed refresh token, got %v", err)
	}
}

func TestDeletedUserIsTreatedAsDisabled(t *testing.T) {
	up := demoUsers(t)
	engine := buildTestEngine(t, testConfig(), up, newTestClock())
	ctx := context.Background()

	pair, err := engine.Login(ctx, "user1", "user123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	up.delete("2")

	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestReplayAfterDeactivationIsStillReplay(t *testing.T) {
	for _, tc := range []struct {
		name    string
		disable func(*mockUserProvider)
	}{
		{"deactivated", func(up *mockUserProvider) { up.setActive("2", false) }},
		{"deleted", func(up *mockUserProvider) { up.delete("2") }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Metrics.Enabled = true
			up := demoUsers(t)
			engine := buildTestEngine(t, cfg, up, newTestClock())
			ctx := context.Background()

			first, err := engine.Login(ctx, "user1", "user123")
			if err != nil {
				t.Fatalf("login failed: %v", err)
			}
			if _, err := engine.Refresh(ctx, first.RefreshToken); err != nil {
				t.Fatalf("refresh failed: %v", err)
			}

			tc.disable(up)

			if _, err := engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrReplayDetected) {
				t.Fatalf("expected ErrReplayDetected for a consumed token, got %v", err)
			}
			if got := engine.MetricsSnapshot().Counters[MetricReplayDetected]; got != 1 {
				t.Fatalf("expected one replay counted, got %d", got)
			}
		})
	}
}

func TestActiveCacheBoundsStaleness(t *testing.T) {
	clock := newTestClock()
	cfg := testConfig()
	cfg.Session.ActiveCacheTTL = 10 * time.Second
	cfg.Metrics.Enabled = true

	up := demoUsers(t)
	engine := buildTestEngine(t, cfg, up, clock)
	ctx := context.Background()

	pair, err := engine.Login(ctx, "user1", "user123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	up.setActive("2", false)
	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("cached active status should still allow access, got %v", err)
	}
	if engine.MetricsSnapshot().Counters[MetricActiveCacheHit] != 1 {
		t.Fatal("expected one active-cache hit")
	}

	clock.Advance(10 * time.Second)
	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected cache expiry to surface deactivation, got %v", err)
	}

	up.setActive("2", true)
	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	up.setActive("2", false)
	engine.InvalidateUser("2")
	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected invalidation to bypass the cache, got %v", err)
	}
}

func TestRevokeAllSessions(t *testing.T) {
	engine := buildTestEngine(t, testConfig(), demoUsers(t), newTestClock())
	ctx := context.Background()

	var pairs []*TokenPair
	for i := 0; i < 3; i++ {
		p, err := engine.Login(ctx, "user1", "user123")
		if err != nil {
			t.Fatalf("login %d failed: %v", i, err)
		}
		pairs = append(pairs, p)
	}
	other, err := engine.Login(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("admin login failed: %v", err)
	}

	n, err := engine.RevokeAllSessions(ctx, "2")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 revoked sessions, got %d", n)
	}

	for _, p := range pairs {
		if _, err := engine.Refresh(ctx, p.RefreshToken); !errors.Is(err, ErrReplayDetected) {
			t.Fatalf("expected revoked refresh token, got %v", err)
		}
		// Issued access tokens survive until expiry.
		if _, err := engine.VerifyAccess(ctx, p.AccessToken); err != nil {
			t.Fatalf("access token should remain valid, got %v", err)
		}
	}
	if _, err := engine.Refresh(ctx, other.RefreshToken); err != nil {
		t.Fatalf("other users must be unaffected: %v", err)
	}
}

func TestRevokeSessionAndPrune(t *testing.T) {
	clock := newTestClock()
	engine := buildTestEngine(t, testConfig(), demoUsers(t), clock)
	ctx := context.Background()

	a, _ := engine.Login(ctx, "user1", "user123")
	b, _ := engine.Login(ctx, "user1", "user123")

	sessions, err := engine.ListSessions(ctx, "2")
	if err != nil || len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d (%v)", len(sessions), err)
	}
	if err := engine.RevokeSession(ctx, sessions[0].JTI); err != nil {
		t.Fatalf("revoke session: %v", err)
	}
	if err := engine.RevokeSession(ctx, "unknown"); err != nil {
		t.Fatalf("unknown jti must be a no-op: %v", err)
	}

	_ = engine.Logout(ctx, b.AccessToken, "")

	clock.Advance(8 * 24 * time.Hour)
	res, err := engine.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if res.RegistryEntries != 1 || res.RevocationEntries != 1 {
		t.Fatalf("unexpected prune result %+v", res)
	}
	_ = a
}

func TestAdminRoleScenario(t *testing.T) {
	engine := buildTestEngine(t, testConfig(), demoUsers(t), newTestClock())
	ctx := context.Background()

	admin, err := engine.Login(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("admin login failed: %v", err)
	}
	claims, err := engine.RequireValid(ctx, admin.AccessToken)
	if err != nil {
		t.Fatalf("admin token invalid: %v", err)
	}
	if err := RequireRole(claims, RoleAdmin); err != nil {
		t.Fatalf("admin must pass the admin gate: %v", err)
	}

	user, err := engine.Login(ctx, "user1", "user123")
	if err != nil {
		t.Fatalf("user login failed: %v", err)
	}
	claims, err = engine.RequireValid(ctx, user.AccessToken)
	if err != nil {
		t.Fatalf("user token invalid: %v", err)
	}
	if err := RequireRole(claims, RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := RequireRole(claims, RoleAdmin, RoleUser); err != nil {
		t.Fatalf("user must pass a gate listing its role: %v", err)
	}
	if err := RequireRole(nil, RoleUser); !errors.Is(err, ErrForbidden) {
		t.Fatalf("nil claims must be forbidden, got %v", err)
	}
}

func TestStoreFailuresAreNotAuthFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	up := demoUsers(t)
	engine := buildTestEngine(t, cfg, up, newTestClock())
	ctx := context.Background()

	pair, err := engine.Login(ctx, "user1", "user123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	up.fail(errors.New("connection refused"))

	if _, err := engine.Login(ctx, "user1", "user123"); KindOf(err) != KindStoreUnavailable {
		t.Fatalf("expected store unavailable on login, got %v", err)
	}
	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable on verify, got %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable on refresh, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricStoreUnavailable] != 3 {
		t.Fatalf("expected 3 store failures, got %d", snap.Counters[MetricStoreUnavailable])
	}
	if snap.Counters[MetricLoginFailure] != 0 || snap.Counters[MetricVerifyFailure] != 0 || snap.Counters[MetricRefreshFailure] != 0 {
		t.Fatalf("store failures must not count as auth failures: %+v", snap.Counters)
	}

	// The refresh token was not consumed by the failed attempt.
	up.fail(nil)
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh after recovery failed: %v", err)
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	ctx := context.Background()

	if _, err := e.Login(ctx, "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.VerifyAccess(ctx, "t"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := e.Logout(ctx, "", ""); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{ErrInvalidCredentials, KindInvalidCredentials},
		{ErrAccountDisabled, KindAccountDisabled},
		{ErrTokenMalformed, KindMalformed},
		{ErrTokenBadSignature, KindBadSignature},
		{ErrTokenExpired, KindExpired},
		{ErrTokenRevoked, KindRevoked},
		{ErrReplayDetected, KindReplayDetected},
		{ErrForbidden, KindForbidden},
		{ErrLoginRateLimited, KindLoginRateLimited},
		{ErrInvalidOrExpiredToken, KindMalformed},
		{errors.New("boom"), KindInternal},
		{errors.Join(ErrStoreUnavailable, ErrTokenExpired), KindStoreUnavailable},
	}

	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
	if KindReplayDetected.String() != "replay_detected" {
		t.Fatalf("unexpected kind name %q", KindReplayDetected.String())
	}
}
