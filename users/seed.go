package users

import (
	"fmt"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/password"
)

type demoAccount struct {
	id, username, password, email string
	role                          authcore.Role
	active                        bool
}

var demoAccounts = []demoAccount{
	{id: "1", username: "admin", password: "admin123", email: "admin@example.com", role: authcore.RoleAdmin, active: true},
	{id: "2", username: "user1", password: "user123", email: "user1@example.com", role: authcore.RoleUser, active: true},
	{id: "3", username: "user2", password: "user123", email: "user2@example.com", role: authcore.RoleUser, active: false},
}

// DemoSeed hashes the three demo accounts with h: admin/admin123, user1/user123 and the
// inactive user2/user123. The hasher must accept 7-byte passwords.
func DemoSeed(h password.Hasher) ([]authcore.User, error) {
	out := make([]authcore.User, 0, len(demoAccounts))
	for _, a := range demoAccounts {
		hash, err := h.Hash(a.password)
		if err != nil {
			return nil, fmt.Errorf("hash demo user %q: %w", a.username, err)
		}
		out = append(out, authcore.User{
			ID:           a.id,
			Username:     a.username,
			PasswordHash: hash,
			Role:         a.role,
			Email:        a.email,
			IsActive:     a.active,
		})
	}
	return out, nil
}
