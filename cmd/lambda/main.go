package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"signup-api/internal/app"
	"signup-api/internal/platform/config"
	"signup-api/internal/platform/health"
	"signup-api/internal/platform/logger"
	"signup-api/internal/platform/telemetry"
)

const flushTimeout = 2 * time.Second

// main serves the signup router from a warm Lambda worker. The domain and
// credential caches live for the lifetime of the worker.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	shutdownTracing, err := telemetry.Setup(context.Background(), telemetry.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		Environment: cfg.Environment,
		Version:     health.Version,
	})
	if err != nil {
		log.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	application, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	log.Info("starting lambda handler", "environment", cfg.Environment)
	lambda.StartWithOptions(httpadapter.NewV2(application.Handler).ProxyWithContext,
		lambda.WithEnableSIGTERM(func() {
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				log.Warn("flushing spans failed", "error", err)
			}
		}),
	)
}
