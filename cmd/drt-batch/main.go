// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/camuslab/dynamic-wirye-drt/internal/adminapi"
	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/dispatch"
	"github.com/camuslab/dynamic-wirye-drt/internal/eventbus"
	"github.com/camuslab/dynamic-wirye-drt/internal/export"
	"github.com/camuslab/dynamic-wirye-drt/internal/fleetinit"
	"github.com/camuslab/dynamic-wirye-drt/internal/ingest"
	"github.com/camuslab/dynamic-wirye-drt/internal/obs"
	"github.com/camuslab/dynamic-wirye-drt/internal/routing"
)

var version = "dev"

func main() {
	var role string
	var configPath string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&role, "role", "run", "Role to run: run|validate")
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	if role == "validate" {
		fmt.Println("config ok")
		return
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	metricsSrv := obs.StartMetricsServer(cfg)
	defer func() { _ = metricsSrv.Shutdown(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	runID := uuid.NewString()
	logger = logger.With(obs.String("run_id", runID))

	if err := runBatch(ctx, cfg, logger); err != nil {
		logger.Fatal("run failed", obs.Err(err))
	}
}

func runBatch(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	loader := ingest.New(cfg, logger)
	requests, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	logger.Info("requests loaded", obs.Int("count", len(requests)))

	vehicles := fleetinit.Place(&cfg.Fleet, requests, cfg.Params.FleetSize)
	logger.Info("fleet placed", obs.Int("count", len(vehicles)))

	var cache routing.Cache
	if cfg.RedisCache.Enabled {
		cache = routing.NewRedisCache(cfg)
	} else {
		cache = routing.NewMemoryCache()
	}
	rc := routing.New(cfg, cache, logger)

	sinks := []dispatch.EventSink{}
	bus, err := eventbus.New(cfg, logger)
	if err != nil {
		logger.Warn("eventbus disabled", obs.Err(err))
	} else if bus != nil {
		defer bus.Close()
		sinks = append(sinks, bus)
	}

	d := dispatch.New(cfg, rc, logger, cfg.Fleet.Seed, sinks...)

	var adminSrv *http.Server
	if cfg.AdminAPI.Enabled {
		store := adminapi.NewStore()
		d.OnTick = store.Update
		router := mux.NewRouter()
		adminapi.New(store, logger).RegisterRoutes(router)
		adminSrv = &http.Server{Addr: cfg.AdminAPI.Addr, Handler: router}
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("admin api stopped", obs.Err(err))
			}
		}()
		defer func() { _ = adminSrv.Shutdown(context.Background()) }()
	}

	result := d.Run(ctx, requests, vehicles)
	logger.Info("run complete",
		obs.Int("served", len(result.Served)),
		obs.Int("rejected", len(result.Rejected)),
	)

	writer := export.New(cfg, logger)
	if err := writer.WriteAll(result); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
