package main

import (
	"context"
	"io"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", "test", io.Discard)
}

func TestLoadUsersMergesSeedAndConfig(t *testing.T) {
	cfg := &config.Config{
		DemoSeed: true,
		Users: []authcore.User{
			{ID: "7", Username: "carol", PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA", Role: authcore.RoleUser, IsActive: true},
		},
	}
	engineCfg := authcore.DefaultConfig()
	engineCfg.Password.Memory = 8 * 1024
	engineCfg.Password.Time = 1
	engineCfg.Password.MinPasswordBytes = 6

	store, err := loadUsers(cfg, engineCfg)
	if err != nil {
		t.Fatalf("loadUsers: %v", err)
	}
	if store.Len() != 4 {
		t.Fatalf("expected 4 users, got %d", store.Len())
	}
	if _, err := store.GetUserByUsername(context.Background(), "admin"); err != nil {
		t.Fatalf("expected seeded admin: %v", err)
	}
}

func TestLoadUsersRejectsDuplicateUsername(t *testing.T) {
	cfg := &config.Config{
		Users: []authcore.User{
			{ID: "1", Username: "dup", PasswordHash: "h", Role: authcore.RoleUser},
			{ID: "2", Username: "dup", PasswordHash: "h", Role: authcore.RoleUser},
		},
	}
	if _, err := loadUsers(cfg, authcore.DefaultConfig()); err == nil {
		t.Fatal("expected duplicate username error")
	}
}

func TestWireStoresSQLite(t *testing.T) {
	b := authcore.New()
	closeFn, err := wireStores(context.Background(), b, config.StoreConfig{Backend: "sqlite", SQLitePath: ":memory:"}, testLogger())
	if err != nil {
		t.Fatalf("wireStores: %v", err)
	}
	closeFn()
}

func TestAuditSinks(t *testing.T) {
	sink, closeFn, err := auditSinks(config.AuditConfig{Enabled: false}, testLogger())
	if err != nil || sink != nil {
		t.Fatalf("expected no sink, got %v %v", sink, err)
	}
	closeFn()

	sink, closeFn, err = auditSinks(config.AuditConfig{Enabled: true, Stdout: true}, testLogger())
	if err != nil || sink == nil {
		t.Fatalf("expected stdout sink, got %v %v", sink, err)
	}
	closeFn()
}
