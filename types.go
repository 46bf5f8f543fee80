package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// Role is the coarse authorization level carried in access tokens.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is the credential record the engine reads through UserProvider. The only write
// the engine makes is a password hash, through PasswordUpdater.
type User struct {
	ID           string `json:"id" yaml:"id"`
	Username     string `json:"username" yaml:"username"`
	PasswordHash string `json:"-" yaml:"password_hash"`
	Role         Role   `json:"role" yaml:"role"`
	Email        string `json:"email,omitempty" yaml:"email"`
	IsActive     bool   `json:"is_active" yaml:"is_active"`
}

// UserProvider is the read-only credential store. Both lookups return ErrUserNotFound for
// unknown users; any other error is treated as a store outage.
type UserProvider interface {
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
}

// PasswordUpdater is the optional write side of a UserProvider. ChangePassword requires
// it; login uses it to rehash outdated hashes.
type PasswordUpdater interface {
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
}

// Claims are the verified contents of an access or refresh token.
type Claims = jwt.Claims

// TokenPair is the login and refresh response.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// Session describes one live refresh token.
type Session struct {
	JTI        string    `json:"jti"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// PruneResult reports a janitor pass.
type PruneResult struct {
	RegistryEntries   int
	RevocationEntries int
}
