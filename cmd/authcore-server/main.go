// Command authcore-server runs the demo authentication API.
//
// Configuration comes from the YAML file named by -config (or AUTHCORE_CONFIG) with
// AUTHCORE_* environment overrides; the token secrets are normally set that way:
//
//	AUTHCORE_ACCESS_SECRET=... AUTHCORE_REFRESH_SECRET=... authcore-server -config authcore.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/api"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/metrics/export/influx"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logging.Default("authcore-server")

	configPath := flag.String("config", os.Getenv("AUTHCORE_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, "authcore-server", version)
	log.Info("configuration loaded",
		"path", *configPath,
		"store", cfg.Store.Backend,
		"throttle", cfg.Throttle.Enabled,
		"audit", cfg.Audit.Enabled,
	)

	engineCfg := cfg.Engine()
	for _, w := range engineCfg.Lint().BySeverity(authcore.LintWarn) {
		log.Warn("configuration lint", "code", w.Code, "severity", w.Severity.String(), "message", w.Message)
	}

	store, err := loadUsers(cfg, engineCfg)
	if err != nil {
		return fmt.Errorf("loading users: %w", err)
	}
	log.Info("user store ready", "users", store.Len(), "demo_seed", cfg.DemoSeed)

	builder := authcore.New().
		WithConfig(engineCfg).
		WithUserProvider(store).
		WithLogger(log.With("component", "engine").Logger)

	closeStores, err := wireStores(ctx, builder, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("opening stores: %w", err)
	}
	defer closeStores()

	sink, closeSinks, err := auditSinks(cfg.Audit, log)
	if err != nil {
		return fmt.Errorf("opening audit sinks: %w", err)
	}
	defer closeSinks()
	if sink != nil {
		builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	// Flush pending audit events before the sinks close.
	defer engine.Close()

	if cfg.Metrics.InfluxDB.Enabled {
		exporter, err := influx.Connect(ctx, engine, influx.Config{
			URL:    cfg.Metrics.InfluxDB.URL,
			Token:  cfg.Metrics.InfluxDB.Token,
			Org:    cfg.Metrics.InfluxDB.Org,
			Bucket: cfg.Metrics.InfluxDB.Bucket,
			Tags:   map[string]string{"service": "authcore-server"},
		}, func(err error) {
			log.Warn("influxdb write failed", "error", err)
		})
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer exporter.Close()
		go exporter.Run(ctx, cfg.Metrics.InfluxDB.Interval)
		log.Info("influxdb exporter started", "url", cfg.Metrics.InfluxDB.URL, "interval", cfg.Metrics.InfluxDB.Interval)
	}

	deps := api.Deps{
		Config:        cfg.Server,
		Logger:        log,
		Engine:        engine,
		Users:         store,
		PruneInterval: cfg.Store.PruneInterval,
		Version:       version,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = prometheus.New(engine).Handler()
		deps.MetricsPath = cfg.Metrics.PrometheusPath
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := server.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}
	return nil
}
