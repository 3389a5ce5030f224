// Package main is the entry point for the treasury server.
//
// It loads configuration, wires the scheduler stack, mounts the control and
// streaming routes on the core chassis and serves HTTP until SIGINT or
// SIGTERM. Shutdown stops both runners, waits for in-flight cycles, detaches
// stream subscribers and then drains the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"treasury/internal/api/handlers"
	"treasury/internal/app"
	"treasury/internal/config"
	"treasury/internal/core"
	"treasury/internal/db"
	"treasury/internal/scheduler"
	"treasury/internal/statecache"
	"treasury/internal/stream"
	"treasury/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewFileProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("treasury starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:      cfg.Observability.OTLPEndpoint,
		ServiceName:   cfg.Service,
		Version:       cfg.Build.Version,
		Insecure:      cfg.Observability.OTLPInsecure,
		EnableTracing: cfg.Observability.EnableTracing,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	comps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	gateway := stream.NewGateway(stream.Config{
		Cache:      comps.Cache,
		Keepalive:  cfg.Stream.Keepalive,
		BufferSize: cfg.Stream.BufferSize,
		Logger:     logger,
	})

	srv, err := buildServer(cfg, logger, serverDeps{
		Registry: comps.Registry,
		Cache:    comps.Cache,
		Gateway:  gateway,
		Metrics:  comps.Recorder,
		Probes:   []core.HealthProbe{db.HealthProbe{DB: comps.Pool}},
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: streams are long-lived and a manual run may outlast
		// the request timeout. JSON routes are bounded by the context timeout.
		IdleTimeout: 120 * time.Second,
	}

	if cfg.Scheduler.AutoStart {
		for _, runner := range comps.Registry.All() {
			runner.Start(ctx)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		comps.Registry.StopAll()
		gateway.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// serverDeps are the components the HTTP surface reads from.
type serverDeps struct {
	Registry *scheduler.Registry
	Cache    *statecache.Cache
	Gateway  *stream.Gateway
	Metrics  core.MetricsCollector
	Probes   []core.HealthProbe
}

// buildServer creates the core server and mounts the control and stream
// routes.
func buildServer(cfg *config.Config, logger *slog.Logger, deps serverDeps) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = deps.Metrics
	srv.HealthProbes = deps.Probes

	schedulerHandler := handlers.NewSchedulerHandler(handlers.RegistryLookup(deps.Registry), srv.Validator, logger)
	stateHandler := handlers.NewStateHandler(deps.Cache, srv.Validator, logger)
	streamHandler := handlers.NewStreamHandler(handlers.StreamConfig{
		Gateway:        deps.Gateway,
		Validator:      srv.Validator,
		Logger:         logger,
		AllowedOrigins: cfg.Server.CorsAllowedOrigins,
	})

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { r.Route("/schedulers", schedulerHandler.RegisterRoutes) },
		func(r chi.Router) { r.Route("/state", stateHandler.RegisterRoutes) },
	)
	srv.StreamRouteRegistrars = append(srv.StreamRouteRegistrars, streamHandler.RegisterRoutes)
	srv.MountRoutes()
	return srv, nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
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
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
