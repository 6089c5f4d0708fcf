package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"warden/internal/checkpoint"
	"warden/internal/gate"
	gatemetrics "warden/internal/gate/metrics"
	"warden/internal/maintenance"
	"warden/internal/platform/config"
	"warden/internal/platform/httpserver"
	"warden/internal/platform/logger"
	"warden/internal/platform/metrics"
	throttlemetrics "warden/internal/throttle/metrics"
	throttleservice "warden/internal/throttle/service"
	tokenmetrics "warden/internal/tokens/metrics"
	tokenservice "warden/internal/tokens/service"
	userstore "warden/internal/users/store/memory"
	httptransport "warden/internal/transport/http"
	"warden/pkg/platform/middleware/metadata"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "warden:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metrics.NewRegistry()
	httpMetrics := metrics.New(registry)

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	stores, err := buildStores(cfg, infra, log)
	if err != nil {
		return err
	}
	events, err := buildPublisher(ctx, cfg, infra, registry, log)
	if err != nil {
		return err
	}
	defer events.Close()

	throttleCfg, err := cfg.ThrottleConfig()
	if err != nil {
		return err
	}
	engine, err := throttleservice.New(stores.throttle,
		throttleservice.WithLogger(log),
		throttleservice.WithConfig(throttleCfg),
		throttleservice.WithMetrics(throttlemetrics.New(registry)),
	)
	if err != nil {
		return err
	}
	ledger, err := tokenservice.New(stores.tokens,
		tokenservice.WithLogger(log),
		tokenservice.WithConfig(cfg.TokenConfig()),
		tokenservice.WithMetrics(tokenmetrics.New(registry)),
	)
	if err != nil {
		return err
	}

	users := userstore.New()
	chain, err := checkpoint.Build(cfg.Checkpoints, checkpoint.Registry{
		checkpoint.NameThrottle:   checkpoint.NewThrottle(engine, users, checkpoint.WithThrottleLogger(log)),
		checkpoint.NameActivation: checkpoint.NewActivation(ledger),
	})
	if err != nil {
		return err
	}

	g, err := gate.New(users, stores.sessions, chain, ledger,
		gate.WithLogger(log),
		gate.WithConfig(gate.Config{
			ResetIPOnSuccess: cfg.Throttle.ResetIPOnSuccess,
			RotateRemembered: cfg.Tokens.RotateRemembered,
			PersistenceTTL:   cfg.Tokens.PersistenceTTL,
		}),
		gate.WithMetrics(gatemetrics.New(registry)),
		gate.WithPublisher(events.publisher),
		gate.WithThrottleReset(engine),
		gate.WithPasswordUpdater(users),
	)
	if err != nil {
		return err
	}

	sweeperOpts := []maintenance.Option{maintenance.WithLogger(log)}
	if stores.pruner != nil {
		sweeperOpts = append(sweeperOpts, maintenance.WithThrottlePruner(stores.pruner, cfg.Maintenance.ThrottleRetention))
	}
	sweeper := maintenance.New(ledger, cfg.Maintenance.Interval, sweeperOpts...)

	clientIP, err := metadata.NewResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	router := httptransport.NewRouter(httptransport.NewHandler(g, users, log), httptransport.RouterConfig{
		Metrics:        httpMetrics,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Ready:          infra.Ready,
		ClientIP:       clientIP,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting warden",
		"addr", cfg.Server.Addr,
		"storage", cfg.Storage.Backend,
		"events", cfg.Events.Sink,
		"checkpoints", chain.Names(),
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	group.Go(func() error { return sweeper.Run(gctx) })
	if events.async != nil {
		group.Go(func() error { return events.async.Run(gctx) })
	}
	return group.Wait()
}
