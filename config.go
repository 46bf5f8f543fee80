package authcore

import (
	"errors"
	"time"
)

// Config is the full engine configuration. Obtain one from DefaultConfig, adjust it, and
// hand it to Builder.WithConfig; the engine keeps its own copy.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Password PasswordConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	// StoreTimeout bounds every registry, revocation-list, throttle and user-store call.
	StoreTimeout time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the two token codecs. Access and refresh keys must differ.
//
// For hs256 AccessKey/RefreshKey are the HMAC secrets (at least 32 bytes). For ed25519
// they are private keys and AccessPublicKey/RefreshPublicKey the matching public keys.
type JWTConfig struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	SigningMethod    string // "hs256" (default) or "ed25519"
	AccessKey        []byte
	RefreshKey       []byte
	AccessPublicKey  []byte
	RefreshPublicKey []byte
	Issuer           string
	Audience         string
	Leeway           time.Duration
	MaxFutureIAT     time.Duration
	KeyID            string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls refresh-session storage and the account-status re-check.
type SessionConfig struct {
	// RedisPrefix namespaces registry keys when the Redis backend is used.
	RedisPrefix string
	// RevocationPrefix namespaces blacklist keys when the Redis backend is used.
	RevocationPrefix string
	// ActiveCacheTTL caches "user is active" answers in VerifyAccess. 0 disables the cache;
	// the maximum is MaxActiveCacheTTL.
	ActiveCacheTTL time.Duration
}

// MaxActiveCacheTTL caps how long a deactivated user can keep using an access token.
const MaxActiveCacheTTL = 30 * time.Second

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig sets argon2id cost parameters for hashes produced by the engine's
// verifier and the plaintext length bounds.
type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinPasswordBytes int
	MaxPasswordBytes int
	// UpgradeOnLogin rehashes bcrypt or weaker argon2id hashes after a successful login
	// when the UserProvider implements PasswordUpdater.
	UpgradeOnLogin bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig configures the optional login throttle. The throttle needs Redis.
type SecurityConfig struct {
	EnableLoginThrottle   bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables in-process counters and the verify latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. Keys are left empty and must be
// supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "authcore",
			MaxFutureIAT:  time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix:      "rt",
			RevocationPrefix: "rv",
			ActiveCacheTTL:   0,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   false,
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		StoreTimeout: 2 * time.Second,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessKey = cloneBytes(cfg.JWT.AccessKey)
	out.JWT.RefreshKey = cloneBytes(cfg.JWT.RefreshKey)
	out.JWT.AccessPublicKey = cloneBytes(cfg.JWT.AccessPublicKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values the engine cannot run with. Key
// material is checked again, in more detail, when the codecs are built.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}

	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.AccessKey) == 0 || len(c.JWT.RefreshKey) == 0 {
		return errors.New("JWT AccessKey and RefreshKey are required")
	}
	if c.JWT.SigningMethod == "ed25519" && (len(c.JWT.AccessPublicKey) == 0 || len(c.JWT.RefreshPublicKey) == 0) {
		return errors.New("ed25519 requires AccessPublicKey and RefreshPublicKey")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}
	if c.JWT.MaxFutureIAT < 0 {
		return errors.New("JWT MaxFutureIAT must be >= 0")
	}

	// Session
	if c.Session.ActiveCacheTTL < 0 {
		return errors.New("Session ActiveCacheTTL must be >= 0")
	}
	if c.Session.ActiveCacheTTL > MaxActiveCacheTTL {
		return errors.New("Session ActiveCacheTTL must be <= 30s")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinPasswordBytes < 0 || c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password length bounds must be >= 0")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("Security LoginCooldownDuration must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	if c.StoreTimeout <= 0 {
		return errors.New("StoreTimeout must be > 0")
	}

	return nil
}
