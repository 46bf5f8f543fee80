package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/authcore"
)

// Config is the demo server configuration. It is loaded from YAML and overridden by
// AUTHCORE_* environment variables.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Auth     AuthConfig      `yaml:"auth"`
	Store    StoreConfig     `yaml:"store"`
	Throttle ThrottleConfig  `yaml:"throttle"`
	Audit    AuditConfig     `yaml:"audit"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Logging  LoggingConfig   `yaml:"logging"`
	DemoSeed bool            `yaml:"demo_seed"`
	Users    []authcore.User `yaml:"users"`
}

// ServerConfig contains HTTP listener settings. Timeouts are in seconds.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     int    `yaml:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"`
}

// AuthConfig maps onto authcore.Config. Secrets should come from the environment.
type AuthConfig struct {
	AccessSecret     string        `yaml:"access_secret"`
	RefreshSecret    string        `yaml:"refresh_secret"`
	Issuer           string        `yaml:"issuer"`
	Audience         string        `yaml:"audience"`
	AccessTTL        time.Duration `yaml:"access_ttl"`
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`
	Leeway           time.Duration `yaml:"leeway"`
	ActiveCacheTTL   time.Duration `yaml:"active_cache_ttl"`
	StoreTimeout     time.Duration `yaml:"store_timeout"`
	MinPasswordBytes int           `yaml:"min_password_bytes"`
	Argon2MemoryKB   uint32        `yaml:"argon2_memory_kb"`
	Argon2Time       uint32        `yaml:"argon2_time"`
	RehashOnLogin    bool          `yaml:"rehash_on_login"`
}

// StoreConfig selects the registry and revocation backends.
//
// memory keeps everything in process; redis uses Redis for both; sqlite and postgres
// keep the registry in SQL and the revocation list in memory.
type StoreConfig struct {
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	SQLitePath    string        `yaml:"sqlite_path"`
	PostgresDSN   string        `yaml:"postgres_dsn"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// ThrottleConfig enables the Redis-backed login throttle.
type ThrottleConfig struct {
	Enabled     bool          `yaml:"enabled"`
	PerIP       bool          `yaml:"per_ip"`
	MaxAttempts int           `yaml:"max_attempts"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// AuditConfig selects audit sinks.
type AuditConfig struct {
	Enabled    bool       `yaml:"enabled"`
	BufferSize int        `yaml:"buffer_size"`
	DropIfFull bool       `yaml:"drop_if_full"`
	Stdout     bool       `yaml:"stdout"`
	MQTT       MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains the security event broker settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
}

// MetricsConfig contains metrics exposition settings.
type MetricsConfig struct {
	Enabled        bool           `yaml:"enabled"`
	Latency        bool           `yaml:"latency"`
	PrometheusPath string         `yaml:"prometheus_path"`
	InfluxDB       InfluxDBConfig `yaml:"influxdb"`
}

// InfluxDBConfig contains push exporter settings.
type InfluxDBConfig struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"`
	Token    string        `yaml:"token"`
	Org      string        `yaml:"org"`
	Bucket   string        `yaml:"bucket"`
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The loading order is:
//  1. Default values
//  2. YAML file values (skipped when path is empty)
//  3. Environment variables
//
// Environment variables follow the pattern AUTHCORE_SECTION_KEY, for example
// AUTHCORE_STORE_BACKEND. The token secrets are AUTHCORE_ACCESS_SECRET and
// AUTHCORE_REFRESH_SECRET.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15,
			WriteTimeout:    15,
			IdleTimeout:     60,
			ShutdownTimeout: 10,
		},
		Auth: AuthConfig{
			Issuer:           "authcore",
			AccessTTL:        15 * time.Minute,
			RefreshTTL:       7 * 24 * time.Hour,
			StoreTimeout:     2 * time.Second,
			MinPasswordBytes: 6,
			Argon2MemoryKB:   64 * 1024,
			Argon2Time:       3,
			RehashOnLogin:    true,
		},
		Store: StoreConfig{
			Backend:       "memory",
			RedisAddr:     "localhost:6379",
			SQLitePath:    "./data/authcore.db",
			PruneInterval: time.Minute,
		},
		Throttle: ThrottleConfig{
			MaxAttempts: 5,
			Cooldown:    15 * time.Minute,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
			MQTT: MQTTConfig{
				ClientID: "authcore",
				Topic:    "authcore/audit",
				QoS:      1,
			},
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			Latency:        true,
			PrometheusPath: "/metrics",
			InfluxDB: InfluxDBConfig{
				Interval: 10 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies AUTHCORE_* variables on top of the file values.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"AUTHCORE_SERVER_ADDR":    &cfg.Server.Addr,
		"AUTHCORE_ACCESS_SECRET":  &cfg.Auth.AccessSecret,
		"AUTHCORE_REFRESH_SECRET": &cfg.Auth.RefreshSecret,
		"AUTHCORE_ISSUER":         &cfg.Auth.Issuer,
		"AUTHCORE_STORE_BACKEND":  &cfg.Store.Backend,
		"AUTHCORE_REDIS_ADDR":     &cfg.Store.RedisAddr,
		"AUTHCORE_REDIS_PASSWORD": &cfg.Store.RedisPassword,
		"AUTHCORE_SQLITE_PATH":    &cfg.Store.SQLitePath,
		"AUTHCORE_POSTGRES_DSN":   &cfg.Store.PostgresDSN,
		"AUTHCORE_MQTT_BROKER":    &cfg.Audit.MQTT.Broker,
		"AUTHCORE_MQTT_USERNAME":  &cfg.Audit.MQTT.Username,
		"AUTHCORE_MQTT_PASSWORD":  &cfg.Audit.MQTT.Password,
		"AUTHCORE_INFLUXDB_URL":   &cfg.Metrics.InfluxDB.URL,
		"AUTHCORE_INFLUXDB_TOKEN": &cfg.Metrics.InfluxDB.Token,
		"AUTHCORE_LOG_LEVEL":      &cfg.Logging.Level,
		"AUTHCORE_LOG_FORMAT":     &cfg.Logging.Format,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"AUTHCORE_ACCESS_TTL":  &cfg.Auth.AccessTTL,
		"AUTHCORE_REFRESH_TTL": &cfg.Auth.RefreshTTL,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = d
	}

	bools := map[string]*bool{
		"AUTHCORE_DEMO_SEED":        &cfg.DemoSeed,
		"AUTHCORE_THROTTLE_ENABLED": &cfg.Throttle.Enabled,
		"AUTHCORE_AUDIT_ENABLED":    &cfg.Audit.Enabled,
	}
	for key, dst := range bools {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = b
	}

	return nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}

	// Token secrets are REQUIRED and must differ.
	const minSecretLength = 32
	switch {
	case c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "":
		errs = append(errs, "auth.access_secret and auth.refresh_secret are required (set AUTHCORE_ACCESS_SECRET and AUTHCORE_REFRESH_SECRET)")
	case len(c.Auth.AccessSecret) < minSecretLength || len(c.Auth.RefreshSecret) < minSecretLength:
		errs = append(errs, "auth secrets must be at least 32 characters")
	case c.Auth.AccessSecret == c.Auth.RefreshSecret:
		errs = append(errs, "auth.access_secret and auth.refresh_secret must differ")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		errs = append(errs, "auth.refresh_ttl must be longer than a positive auth.access_ttl")
	}

	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.RedisAddr == "" {
			errs = append(errs, "store.redis_addr is required for the redis backend")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite backend")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, "store.postgres_dsn is required for the postgres backend")
		}
	default:
		errs = append(errs, "store.backend must be memory, redis, sqlite or postgres")
	}

	if c.Throttle.Enabled {
		if c.Store.Backend != "redis" {
			errs = append(errs, "throttle.enabled requires the redis store backend")
		}
		if c.Throttle.MaxAttempts <= 0 || c.Throttle.Cooldown <= 0 {
			errs = append(errs, "throttle.max_attempts and throttle.cooldown must be > 0")
		}
	}

	if c.Audit.MQTT.Enabled {
		if c.Audit.MQTT.Broker == "" {
			errs = append(errs, "audit.mqtt.broker is required when MQTT is enabled")
		}
		if c.Audit.MQTT.QoS < 0 || c.Audit.MQTT.QoS > 2 {
			errs = append(errs, "audit.mqtt.qos must be 0, 1, or 2")
		}
	}

	if c.Metrics.InfluxDB.Enabled && (c.Metrics.InfluxDB.URL == "" || c.Metrics.InfluxDB.Bucket == "") {
		errs = append(errs, "metrics.influxdb.url and bucket are required when InfluxDB is enabled")
	}

	seen := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		if u.ID == "" || u.Username == "" || u.PasswordHash == "" {
			errs = append(errs, fmt.Sprintf("users[%d]: id, username and password_hash are required", i))
		}
		if !u.Role.Valid() {
			errs = append(errs, fmt.Sprintf("users[%d]: role must be admin or user", i))
		}
		if seen[u.Username] {
			errs = append(errs, fmt.Sprintf("users[%d]: duplicate username %q", i, u.Username))
		}
		seen[u.Username] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Engine converts the auth, throttle, audit and metrics sections into an authcore.Config.
func (c *Config) Engine() authcore.Config {
	cfg := authcore.DefaultConfig()

	cfg.JWT.AccessKey = []byte(c.Auth.AccessSecret)
	cfg.JWT.RefreshKey = []byte(c.Auth.RefreshSecret)
	cfg.JWT.Issuer = c.Auth.Issuer
	cfg.JWT.Audience = c.Auth.Audience
	cfg.JWT.AccessTTL = c.Auth.AccessTTL
	cfg.JWT.RefreshTTL = c.Auth.RefreshTTL
	cfg.JWT.Leeway = c.Auth.Leeway

	cfg.Session.ActiveCacheTTL = c.Auth.ActiveCacheTTL
	if c.Auth.StoreTimeout > 0 {
		cfg.StoreTimeout = c.Auth.StoreTimeout
	}

	cfg.Password.MinPasswordBytes = c.Auth.MinPasswordBytes
	if c.Auth.Argon2MemoryKB > 0 {
		cfg.Password.Memory = c.Auth.Argon2MemoryKB
	}
	if c.Auth.Argon2Time > 0 {
		cfg.Password.Time = c.Auth.Argon2Time
	}
	cfg.Password.UpgradeOnLogin = c.Auth.RehashOnLogin

	cfg.Security.EnableLoginThrottle = c.Throttle.Enabled
	cfg.Security.EnableIPThrottle = c.Throttle.PerIP
	cfg.Security.MaxLoginAttempts = c.Throttle.MaxAttempts
	cfg.Security.LoginCooldownDuration = c.Throttle.Cooldown

	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Audit.BufferSize = c.Audit.BufferSize
	cfg.Audit.DropIfFull = c.Audit.DropIfFull

	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Latency

	return cfg
}

// ReadTimeout returns the server read timeout as a Duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeout) * time.Second
}

// WriteTimeout returns the server write timeout as a Duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeout) * time.Second
}

// IdleTimeout returns the server idle timeout as a Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Server.IdleTimeout) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget as a Duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}
