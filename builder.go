package authcore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/registry"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it during initialization, call Build once, and
// discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	registry    registry.Registry
	revocations revocation.List

	userProvider UserProvider
	auditSink    AuditSink
	logger       *slog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder holding the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The Builder keeps a copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis selects the Redis registry and revocation list (unless explicit stores are
// given) and enables the login throttle backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRegistry sets the refresh-token registry. Without it the engine uses Redis when
// configured and an in-memory registry otherwise.
func (b *Builder) WithRegistry(r registry.Registry) *Builder {
	b.registry = r
	return b
}

// WithRevocationList sets the access-token blacklist.
func (b *Builder) WithRevocationList(l revocation.List) *Builder {
	b.revocations = l
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token stamping, registry liveness and the active
// cache. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	if cfg.Security.EnableLoginThrottle && b.redis == nil {
		return nil, errors.New("login throttle requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- TOKEN CODECS --------
	accessCodec, refreshCodec, err := jwt.NewPair(
		codecConfig(cfg.JWT, cfg.JWT.AccessTTL, cfg.JWT.AccessKey, cfg.JWT.AccessPublicKey, now),
		codecConfig(cfg.JWT, cfg.JWT.RefreshTTL, cfg.JWT.RefreshKey, cfg.JWT.RefreshPublicKey, now),
	)
	if err != nil {
		return nil, err
	}

	// -------- STORES --------
	reg := b.registry
	if reg == nil {
		if b.redis != nil {
			reg = registry.NewRedis(b.redis, cfg.Session.RedisPrefix, now)
		} else {
			reg = registry.NewMemory(now)
		}
	}

	revoked := b.revocations
	if revoked == nil {
		if b.redis != nil {
			revoked = revocation.NewRedis(b.redis, cfg.Session.RevocationPrefix, now)
		} else {
			revoked = revocation.NewMemory(now)
		}
	}

	// -------- PASSWORDS --------
	verifier, err := password.NewVerifier(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinPasswordBytes,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		access:    accessCodec,
		refresh:   refreshCodec,
		registry:  reg,
		revoked:   revoked,
		users:     b.userProvider,
		passwords: verifier,
		active:    newActiveCache(cfg.Session.ActiveCacheTTL, now),
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
		now:       now,
	}

	if cfg.Security.EnableLoginThrottle {
		engine.limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		})
	}

	engine.initFlows()

	b.built = true

	return engine, nil
}

func codecConfig(j JWTConfig, ttl time.Duration, key, publicKey []byte, now func() time.Time) jwt.Config {
	return jwt.Config{
		TTL:           ttl,
		SigningMethod: jwt.SigningMethod(j.SigningMethod),
		PrivateKey:    cloneBytes(key),
		PublicKey:     cloneBytes(publicKey),
		Issuer:        j.Issuer,
		Audience:      j.Audience,
		Leeway:        j.Leeway,
		MaxFutureIAT:  j.MaxFutureIAT,
		KeyID:         j.KeyID,
		Now:           now,
	}
}
