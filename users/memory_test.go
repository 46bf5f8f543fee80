package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/password"
)

func fastHasher(t *testing.T) *password.Argon2 {
	t.Helper()
	h, err := password.NewArgon2(password.Config{
		Memory:           8 * 1024,
		Time:             1,
		Parallelism:      1,
		SaltLength:       16,
		KeyLength:        32,
		MinPasswordBytes: 6,
	})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

func demoStore(t *testing.T) *MemoryStore {
	t.Helper()
	seed, err := DemoSeed(fastHasher(t))
	if err != nil {
		t.Fatalf("DemoSeed: %v", err)
	}
	s, err := NewMemoryStore(seed...)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	return s
}

func TestDemoSeedAccounts(t *testing.T) {
	h := fastHasher(t)
	s := demoStore(t)
	ctx := context.Background()

	if s.Len() != 3 {
		t.Fatalf("expected 3 users, got %d", s.Len())
	}

	admin, err := s.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("lookup admin: %v", err)
	}
	if admin.Role != authcore.RoleAdmin || !admin.IsActive {
		t.Fatalf("unexpected admin record: %+v", admin)
	}
	if ok, err := h.Verify("admin123", admin.PasswordHash); err != nil || !ok {
		t.Fatalf("admin password did not verify: ok=%v err=%v", ok, err)
	}

	user2, err := s.GetUserByID(ctx, "3")
	if err != nil {
		t.Fatalf("lookup user2: %v", err)
	}
	if user2.Username != "user2" || user2.IsActive {
		t.Fatalf("user2 must be seeded inactive: %+v", user2)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := demoStore(t)
	ctx := context.Background()

	if _, err := s.GetUserByUsername(ctx, "nobody"); !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := s.GetUserByID(ctx, "99"); !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "99"); !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemoryStorePutRules(t *testing.T) {
	s := demoStore(t)

	if err := s.Put(authcore.User{ID: "4", Username: "admin", PasswordHash: "x", Role: authcore.RoleUser}); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected duplicate username, got %v", err)
	}
	if err := s.Put(authcore.User{ID: "4", Username: "eve", PasswordHash: "x", Role: "root"}); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected invalid role, got %v", err)
	}
	if err := s.Put(authcore.User{ID: "", Username: "eve", PasswordHash: "x", Role: authcore.RoleUser}); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected invalid id, got %v", err)
	}

	// Renaming frees the old username.
	u, _ := s.GetUserByID(context.Background(), "2")
	u.Username = "user1-renamed"
	if err := s.Put(u); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if _, err := s.GetUserByUsername(context.Background(), "user1"); !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("old username should be free, got %v", err)
	}
}

func TestMemoryStoreSetActiveAndDelete(t *testing.T) {
	s := demoStore(t)
	ctx := context.Background()

	if _, err := s.SetActive(ctx, "1", false); !errors.Is(err, ErrProtectedUser) {
		t.Fatalf("expected admin to be protected, got %v", err)
	}

	u, err := s.SetActive(ctx, "3", true)
	if err != nil || !u.IsActive {
		t.Fatalf("activate user2: %+v %v", u, err)
	}

	if err := s.Delete(ctx, "2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list := s.List(ctx)
	if len(list) != 2 || list[0].ID != "1" || list[1].ID != "3" {
		t.Fatalf("unexpected list after delete: %+v", list)
	}
}

func TestMemoryStoreDrivesEngine(t *testing.T) {
	s := demoStore(t)

	cfg := authcore.DefaultConfig()
	cfg.JWT.AccessKey = []byte("store-test-access-key-0123456789abcdef")
	cfg.JWT.RefreshKey = []byte("store-test-refresh-key-0123456789abcde")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.MinPasswordBytes = 6

	now := time.Unix(1_700_000_000, 0)
	engine, err := authcore.New().
		WithConfig(cfg).
		WithUserProvider(s).
		WithClock(func() time.Time { return now }).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	ctx := context.Background()

	pair, err := engine.Login(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	claims, err := engine.VerifyAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := authcore.RequireRole(claims, authcore.RoleAdmin); err != nil {
		t.Fatalf("admin should pass admin gate: %v", err)
	}

	if _, err := engine.Login(ctx, "user2", "user123"); !errors.Is(err, authcore.ErrAccountDisabled) {
		t.Fatalf("expected inactive user2 to be disabled, got %v", err)
	}

	userPair, err := engine.Login(ctx, "user1", "user123")
	if err != nil {
		t.Fatalf("user1 login: %v", err)
	}
	if _, err := s.SetActive(ctx, "2", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := engine.VerifyAccess(ctx, userPair.AccessToken); !errors.Is(err, authcore.ErrAccountDisabled) {
		t.Fatalf("expected deactivated user to be rejected, got %v", err)
	}
}

func TestMemoryStoreUpdatePasswordHash(t *testing.T) {
	s := demoStore(t)
	ctx := context.Background()
	h := fastHasher(t)

	hash, err := h.Hash("new-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := s.UpdatePasswordHash(ctx, "2", hash); err != nil {
		t.Fatalf("update: %v", err)
	}
	u, _ := s.GetUserByUsername(ctx, "user1")
	if ok, _ := h.Verify("new-secret", u.PasswordHash); !ok {
		t.Fatal("expected the new hash to be stored")
	}

	if err := s.UpdatePasswordHash(ctx, "99", hash); !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := s.UpdatePasswordHash(ctx, "2", ""); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser for an empty hash, got %v", err)
	}
}
