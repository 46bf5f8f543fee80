package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/registry"
	"github.com/MrEthical07/authcore/users"
)

const redisPingTimeout = 5 * time.Second

// loadUsers builds the in-process user store from the demo seed and the users: section.
// Configured users replace seeded users of the same ID.
func loadUsers(cfg *config.Config, engineCfg authcore.Config) (*users.MemoryStore, error) {
	store, err := users.NewMemoryStore()
	if err != nil {
		return nil, err
	}

	if cfg.DemoSeed {
		h, err := password.NewArgon2(password.Config{
			Memory:           engineCfg.Password.Memory,
			Time:             engineCfg.Password.Time,
			Parallelism:      engineCfg.Password.Parallelism,
			SaltLength:       engineCfg.Password.SaltLength,
			KeyLength:        engineCfg.Password.KeyLength,
			MinPasswordBytes: engineCfg.Password.MinPasswordBytes,
		})
		if err != nil {
			return nil, err
		}
		seed, err := users.DemoSeed(h)
		if err != nil {
			return nil, err
		}
		for _, u := range seed {
			if err := store.Put(u); err != nil {
				return nil, err
			}
		}
	}

	for _, u := range cfg.Users {
		if err := store.Put(u); err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Username, err)
		}
	}
	return store, nil
}

// wireStores attaches the configured registry and revocation backends to b and returns
// a function that releases them.
func wireStores(ctx context.Context, b *authcore.Builder, cfg config.StoreConfig, log *logging.Logger) (func(), error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		b.WithRedis(client)
		log.Info("redis connected", "addr", cfg.RedisAddr)
		return func() { _ = client.Close() }, nil

	case "sqlite":
		db, err := registry.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.WithRegistry(registry.NewSQL(db, registry.DialectSQLite, time.Now))
		log.Info("sqlite registry ready", "path", cfg.SQLitePath)
		return func() { _ = db.Close() }, nil

	case "postgres":
		db, err := registry.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		b.WithRegistry(registry.NewSQL(db, registry.DialectPostgres, time.Now))
		log.Info("postgres registry ready")
		return func() { _ = db.Close() }, nil

	default:
		log.Warn("using in-memory stores; sessions do not survive a restart")
		return func() {}, nil
	}
}

// auditSinks returns the configured sinks combined, or nil when none are enabled.
func auditSinks(cfg config.AuditConfig, log *logging.Logger) (authcore.AuditSink, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	var (
		sinks   authcore.MultiSink
		closers []func()
	)
	if cfg.Stdout {
		sinks = append(sinks, authcore.NewJSONWriterSink(os.Stdout))
	}
	if cfg.MQTT.Enabled {
		mq, err := authcore.DialMQTTSink(authcore.MQTTConfig{
			BrokerURL: cfg.MQTT.Broker,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			Topic:     cfg.MQTT.Topic,
			QoS:       byte(cfg.MQTT.QoS),
		})
		if err != nil {
			return nil, func() {}, err
		}
		mq.OnError = func(err error) {
			log.Warn("audit mqtt publish failed", "error", err)
		}
		sinks = append(sinks, mq)
		closers = append(closers, mq.Close)
		log.Info("audit mqtt sink connected", "broker", cfg.MQTT.Broker)
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(sinks) == 0 {
		return nil, closeAll, nil
	}
	return sinks, closeAll, nil
}
