package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signup-api/internal/app"
	"signup-api/internal/platform/config"
	"signup-api/internal/platform/health"
	"signup-api/internal/platform/logger"
	"signup-api/internal/platform/telemetry"
)

const shutdownTimeout = 10 * time.Second

// main wires configuration, the signup application and the HTTP server
// lifecycle. Business logic lives in internal/signup.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	log.Info("initializing signup-api",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		Environment: cfg.Environment,
		Version:     health.Version,
	})
	if err != nil {
		log.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	// Warm the allowlist so the first visitor does not pay for the fetch.
	if _, err := application.Domains.GetDomains(ctx); err != nil {
		log.Warn("initial domain fetch failed", "error", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(application.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/", application.Handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("flushing spans failed", "error", err)
	}

	log.Info("server stopped")
}
