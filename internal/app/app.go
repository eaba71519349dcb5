// Package app wires the signup components into one HTTP handler shared by the
// server and lambda binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"signup-api/internal/platform/config"
	"signup-api/internal/platform/health"
	"signup-api/internal/platform/metrics"
	"signup-api/internal/platform/tracer"
	"signup-api/internal/signup/credentials"
	"signup-api/internal/signup/domains"
	"signup-api/internal/signup/handler"
	"signup-api/internal/signup/identity"
	"signup-api/internal/signup/service"
	"signup-api/pkg/platform/circuit"
	request "signup-api/pkg/platform/middleware/request"
)

// App holds the assembled handler and the registry its metrics live in.
type App struct {
	Handler  http.Handler
	Registry *prometheus.Registry
	Domains  *domains.Cache
}

// New builds every component from cfg. Missing identity settings are logged,
// not returned, so the domains endpoint keeps serving while signups fail.
// Spans go to whichever tracer provider is global when New runs.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Identity.Validate(); err != nil {
		logger.Warn("identity provisioning is not configured, signups will fail", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	t := tracer.NewOTel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	broker := credentials.New(sts.NewFromConfig(awsCfg), credentials.Config{
		RoleARN:    cfg.RoleARN,
		ExternalID: cfg.ExternalID,
		Timeout:    cfg.CredentialTimeout,
	}, logger, credentials.WithMetrics(m))

	directory := identity.New(cfg.Identity, broker, identity.NewSDKFactory(awsCfg), logger)

	cache := domains.New(cfg.DomainSourceURL, logger,
		domains.WithBreaker(circuit.New("domain_source")),
		domains.WithMetrics(m),
		domains.WithTracer(t),
	)

	svc := service.New(cache, directory,
		service.WithLogger(logger),
		service.WithTracer(t),
		service.WithMetrics(m),
	)

	healthHandler := health.New(cfg.Environment,
		health.WithAllowlist(cache, cache.TTL()),
		health.WithCredentials(broker, credentials.ExpiryBuffer),
	)
	healthHandler.RegisterCheck("domains", cache.Ready)

	h := handler.New(svc, logger,
		handler.WithMetrics(m),
		handler.WithLoginRedirectURL(cfg.LoginRedirectURL),
	)
	router := handler.NewRouter(h, healthHandler, logger, request.NewMetrics(reg),
		handler.WithRequestTimeout(cfg.RequestTimeout),
	)

	return &App{
		Handler:  otelhttp.NewHandler(router, "signup-api"),
		Registry: reg,
		Domains:  cache,
	}, nil
}
