// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sharpen provides the core FDR sharpening service for AleutianStats.
//
// This package contains the main service type that coordinates all components
// of the service: HTTP routing, the BadgerDB run store, the InfluxDB history
// recorder, the LLM interpreter, API key auth, and observability
// infrastructure. Enterprise authentication and audit logging plug in
// through pkg/extensions.
//
// # Usage
//
//	cfg := sharpen.Config{Port: 12230}
//	svc, err := sharpen.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
package sharpen

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

	"github.com/AleutianAI/AleutianStats/pkg/extensions"
	"github.com/AleutianAI/AleutianStats/services/sharpen/handlers"
	"github.com/AleutianAI/AleutianStats/services/sharpen/history"
	"github.com/AleutianAI/AleutianStats/services/sharpen/interpret"
	"github.com/AleutianAI/AleutianStats/services/sharpen/observability"
	"github.com/AleutianAI/AleutianStats/services/sharpen/routes"
	"github.com/AleutianAI/AleutianStats/services/sharpen/secrets"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
	"github.com/AleutianAI/AleutianStats/services/sharpen/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the sharpen service.
//
// # Description
//
// Service is the narrow waist between main and the wiring inside this
// package: construction happens in New, after which a caller either runs
// the HTTP server or, in tests, drives the router directly.
//
// # Thread Safety
//
// Safe for concurrent use, with one caveat: Run blocks until shutdown
// and must not be called twice on the same instance.
type Service interface {
	// Run serves HTTP until the process is told to stop.
	//
	// # Description
	//
	// Binds the configured port and blocks. When the server fails or a
	// SIGINT/SIGTERM arrives, in-flight requests are drained and the
	// store, history recorder, and telemetry pipelines are closed.
	//
	// # Outputs
	//
	//   - error: Non-nil if the server fails to start or shutdown times out
	Run() error

	// Router exposes the Gin engine so tests can exercise the full
	// middleware and handler chain via httptest without binding a port.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds the sharpen service configuration.
//
// # Description
//
// All fields have sensible defaults applied by applyConfigDefaults, so the
// zero value is a usable development configuration. Backends that need
// credentials (InfluxDB history, OpenAI interpretation, API key auth) are
// configured through the environment and degrade to disabled when absent.
type Config struct {
	// Port is the HTTP listen port. Default: 12230.
	Port int

	// StorePath is the BadgerDB directory for persisted runs.
	// Default: ./data/sharpen.
	StorePath string

	// StoreInMemory runs the store without disk persistence. Intended for
	// tests and ephemeral deployments.
	StoreInMemory bool

	// GinMode sets the Gin mode (debug, release, test). Empty leaves the
	// GIN_MODE environment default in place.
	GinMode string

	// RateRPS is the sustained per-client request rate for /v1 routes.
	// Default: 50.
	RateRPS float64

	// RateBurst is the per-client burst allowance. Default: 100.
	RateBurst int

	// OTelEndpoint is the OTLP gRPC collector endpoint. Empty keeps the
	// telemetry package default (localhost:4317 or the OTEL_* environment).
	OTelEndpoint string

	// Environment tags telemetry resources (dev, staging, prod).
	// Default: dev.
	Environment string
}

// applyConfigDefaults fills in default values for unset config fields.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12230
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "./data/sharpen"
	}
	if cfg.RateRPS <= 0 {
		cfg.RateRPS = 50
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 100
	}
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}
	return cfg
}

// =============================================================================
// Service Implementation
// =============================================================================

// Compile-time interface compliance check.
var _ Service = (*service)(nil)

// service is the concrete Service implementation.
type service struct {
	cfg      Config
	opts     extensions.ServiceOptions
	router   *gin.Engine
	store    *store.BadgerStore
	recorder *history.Recorder
	interp   *interpret.Interpreter
	vault    secrets.Vault
	metrics  *observability.SharpenMetrics

	telemetryShutdown func(context.Context) error
}

// New creates a fully initialized sharpen service.
//
// # Description
//
// Initialization order matters: telemetry first so every later component can
// emit traces and metrics, then the secrets vault, the run store, and the
// optional backends. The run store is the only hard dependency beyond
// telemetry - history recording and LLM interpretation log a warning and
// stay disabled when their backends are not configured.
//
// # Inputs
//
//   - cfg: Service configuration. Zero-value fields receive defaults.
//   - opts: Enterprise extension hooks; nil runs fully open source.
//
// # Outputs
//
//   - Service: Ready to Run()
//   - error: Non-nil if telemetry or the run store fail to initialize
//
// # Examples
//
//	// Single-user deployment, everything defaulted
//	svc, err := sharpen.New(sharpen.Config{Port: 12230}, nil)
//
//	// Enterprise build plugging in real identity and audit sinks
//	svc, err := sharpen.New(cfg, &extensions.ServiceOptions{
//	    AuthProvider: oktaProvider,
//	    AuditLogger:  siemLogger,
//	})
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	s := &service{cfg: cfg}

	// nil opts selects the no-op extension implementations.
	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = handlers.ServiceVersion
	tcfg.Environment = cfg.Environment
	if cfg.OTelEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.OTelEndpoint
	}
	shutdown, err := telemetry.Init(context.Background(), tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.telemetryShutdown = shutdown

	s.metrics = observability.InitMetrics()

	// API key auth is optional: with no vault (or no key loaded into it)
	// the auth middleware runs in open mode.
	vault, err := secrets.NewVault()
	if err != nil {
		slog.Warn("Secrets vault unavailable, API key auth disabled", "error", err)
	} else {
		s.vault = vault
		if n := secrets.LoadFromEnv(vault); n > 0 {
			slog.Info("Loaded secrets from environment", "count", n)
		}
	}

	scfg := store.DefaultConfig(cfg.StorePath)
	if cfg.StoreInMemory {
		scfg = store.InMemoryConfig()
	}
	st, err := store.NewBadgerStore(scfg)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	s.store = st

	s.recorder = history.NewRecorder(history.ConfigFromEnv(), nil)
	if s.recorder.Enabled() {
		slog.Info("History recording enabled")
	} else {
		slog.Info("History recording disabled (INFLUXDB_URL/INFLUXDB_TOKEN not set)")
	}

	client, err := interpret.NewOpenAIClient()
	if err != nil {
		slog.Warn("Run interpretation disabled", "error", err)
		s.interp = interpret.NewInterpreter(nil, nil)
	} else {
		s.interp = interpret.NewInterpreter(client, nil)
	}

	s.initRouter()
	return s, nil
}

// initRouter builds the Gin engine with middleware and routes.
func (s *service) initRouter() {
	if s.cfg.GinMode != "" {
		gin.SetMode(s.cfg.GinMode)
	}
	router := gin.Default()
	router.Use(otelgin.Middleware("sharpen-service"))

	// The Prometheus handler serves both the OTel metrics pipeline and the
	// promauto counters registered by observability.
	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	routes.SetupRoutes(router, s.store, s.recorder, s.interp, s.vault, s.opts,
		s.cfg.RateRPS, s.cfg.RateBurst)
	s.router = router
}

// Run starts the HTTP server and blocks until shutdown.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	slog.Info("Sharpen service listening", "addr", addr, "version", handlers.ServiceVersion)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		slog.Info("Shutdown signal received", "signal", sig.String())
	}

	// Drain in-flight requests before cleanup closes the store.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

// Router returns the configured engine.
func (s *service) Router() *gin.Engine {
	return s.router
}

// cleanup releases all service resources in reverse initialization order.
func (s *service) cleanup() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("Failed to close run store", "error", err)
		}
	}
	if s.recorder != nil {
		s.recorder.Close()
	}
	secrets.PurgeAll()
	if s.telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetryShutdown(ctx); err != nil {
			slog.Warn("Telemetry shutdown failed", "error", err)
		}
	}
}
