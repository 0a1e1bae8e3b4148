// Command fleetd runs the MCP fleet daemon: it loads the server definitions
// from a YAML file, connects and supervises the fleet, and serves the admin
// control surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/mcpfleet/mcpfleet/pkg/abort"
	"github.com/mcpfleet/mcpfleet/pkg/admin"
	"github.com/mcpfleet/mcpfleet/pkg/catalog"
	"github.com/mcpfleet/mcpfleet/pkg/confcache"
	"github.com/mcpfleet/mcpfleet/pkg/config"
	"github.com/mcpfleet/mcpfleet/pkg/fleet"
)

func main() {
	configPath := flag.String("config", "fleet.yaml", "path to the fleet configuration file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("fleetd stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store := buildStore(cfg.Cache, logger)
	source := config.NewCachedSource(config.FileSource{Path: configPath}, store, cfg.Cache.TTL)

	registry := fleet.NewRegistry(&fleet.Options{
		Logger:             logger,
		DefaultCallTimeout: cfg.Resilience.CallTimeout,
		FailureThreshold:   cfg.Resilience.FailureThreshold,
		ResetTimeout:       cfg.Resilience.ResetTimeout,
		MaxRetries:         cfg.Resilience.MaxRetries,
		RetryBaseDelay:     cfg.Resilience.RetryBaseDelay,
		RetryMaxDelay:      cfg.Resilience.RetryMaxDelay,
	})
	defer func() {
		_ = registry.Close(context.Background())
	}()

	defs, err := source.Definitions(ctx)
	if err != nil {
		return fmt.Errorf("loading server definitions: %w", err)
	}
	if err := registry.Reconcile(ctx, defs); err != nil {
		// Unreachable servers stay registered in an error state and are
		// retried by the health monitor.
		logger.Warn("initial reconcile finished with errors", "error", err)
	}

	monitor := fleet.NewMonitor(registry, &fleet.MonitorOptions{
		Interval:     cfg.Health.Interval,
		ProbeTimeout: cfg.Health.ProbeTimeout,
		Logger:       logger,
	})
	monitor.Start(ctx)
	defer monitor.Stop()

	aborts := abort.NewRegistry(&abort.Options{Logger: logger})
	aggregator := catalog.NewAggregator(registry, aborts, &catalog.Options{Logger: logger})

	server := admin.NewServer(registry, aggregator, aborts, source, source, &admin.Options{
		Addr:           cfg.Admin.Addr,
		AllowedOrigins: cfg.Admin.AllowedOrigins,
		Logger:         logger,
	})

	logger.Info("fleetd started",
		"admin_addr", cfg.Admin.Addr,
		"servers", len(defs),
		"health_interval", cfg.Health.Interval,
	)
	return server.ListenAndServe(ctx)
}

// buildStore selects the config-cache backend: Redis when an address is
// configured, the in-process store otherwise. The Redis store is wrapped so a
// cache outage degrades to misses instead of failing reconciles.
func buildStore(cfg config.CacheConfig, logger *slog.Logger) confcache.Store {
	if cfg.Redis.Addr == "" {
		return confcache.NewMemory()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.Info("using redis config cache", "addr", cfg.Redis.Addr)
	return confcache.BestEffort{Store: confcache.NewRedis(client, ""), Logger: logger}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
