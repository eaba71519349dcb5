// Package service runs the signup checks that need upstream state: the
// organisation allowlist, the existence check and user creation.
package service

import (
	"context"
	"log/slog"

	"signup-api/internal/platform/privacy"
	"signup-api/internal/platform/tracer"
	"signup-api/internal/signup/models"
	dErrors "signup-api/pkg/domain-errors"
	"signup-api/pkg/requestcontext"
)

// DomainProvider returns the current allowlist snapshot.
type DomainProvider interface {
	GetDomains(ctx context.Context) ([]models.DomainInfo, error)
}

// Provisioner looks up and creates directory users.
type Provisioner interface {
	UserExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, req *models.SignupRequest) (string, error)
}

// Metrics records provisioning outcomes.
type Metrics interface {
	IncrementUsersCreated()
}

// Service authorizes and provisions validated signup requests.
type Service struct {
	domains     DomainProvider
	provisioner Provisioner
	logger      *slog.Logger
	tracer      tracer.Tracer
	metrics     Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func New(domains DomainProvider, provisioner Provisioner, opts ...Option) *Service {
	s := &Service{
		domains:     domains,
		provisioner: provisioner,
		logger:      slog.Default(),
		tracer:      tracer.NewNoop(),
		metrics:     noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Domains returns the allowlist, or CodeUnavailable when nothing can be served.
func (s *Service) Domains(ctx context.Context) ([]models.DomainInfo, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSignupDomains,
		tracer.String(tracer.AttrCorrelationID, requestcontext.RequestID(ctx)),
	)
	domains, err := s.domains.GetDomains(ctx)
	if err != nil {
		span.End(err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "domain allowlist unavailable")
	}
	span.SetAttributes(tracer.Int64(tracer.AttrDomainCount, int64(len(domains))))
	span.End(nil)
	return domains, nil
}

// Signup expects a request that has passed Validate and Canonicalize. It
// returns CodeForbidden for domains outside the allowlist, CodeUnavailable
// when the allowlist or credentials cannot be obtained, CodeTimeout when the
// credential exchange runs out of time, CodeConflict when the user already
// exists and CodeInternal for any other failure.
func (s *Service) Signup(ctx context.Context, req *models.SignupRequest) (err error) {
	orgDomain := privacy.EmailDomain(req.Email)
	ctx, span := s.tracer.Start(ctx, tracer.SpanSignupCreate,
		tracer.String(tracer.AttrOrgDomain, orgDomain),
		tracer.String(tracer.AttrCorrelationID, requestcontext.RequestID(ctx)),
	)
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrOutcome, outcomeOf(err)))
		span.End(err)
	}()

	if err := s.authorizeDomain(ctx, orgDomain); err != nil {
		return err
	}

	exists, err := s.provisioner.UserExists(ctx, req.Email)
	if err != nil {
		s.logFailure(ctx, orgDomain, "existence check failed", err)
		return provisioningError(err, "existence check failed")
	}
	if exists {
		s.logger.InfoContext(ctx, "signup rejected, user exists",
			"correlation_id", requestcontext.RequestID(ctx),
			"org_domain", orgDomain,
			"outcome", outcomeOf(models.ErrUserExists),
		)
		return models.ErrUserExists
	}

	userID, err := s.provisioner.CreateUser(ctx, req)
	if err != nil {
		if models.IsUserExists(err) {
			s.logger.InfoContext(ctx, "signup lost creation race, user exists",
				"correlation_id", requestcontext.RequestID(ctx),
				"org_domain", orgDomain,
				"outcome", outcomeOf(err),
			)
			return models.ErrUserExists
		}
		s.logFailure(ctx, orgDomain, "user creation failed", err)
		return provisioningError(err, "user creation failed")
	}

	s.metrics.IncrementUsersCreated()
	s.logger.InfoContext(ctx, "user created",
		"correlation_id", requestcontext.RequestID(ctx),
		"org_domain", orgDomain,
		"user_id", userID,
		"outcome", "success",
	)
	return nil
}

func (s *Service) authorizeDomain(ctx context.Context, orgDomain string) error {
	domains, err := s.domains.GetDomains(ctx)
	if err != nil {
		s.logFailure(ctx, orgDomain, "domain allowlist unavailable", err)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "domain allowlist unavailable")
	}
	for _, d := range domains {
		if d.Domain == orgDomain {
			return nil
		}
	}
	s.logger.InfoContext(ctx, "signup rejected, domain not allowed",
		"correlation_id", requestcontext.RequestID(ctx),
		"org_domain", orgDomain,
		"outcome", string(dErrors.CodeForbidden),
	)
	return dErrors.New(dErrors.CodeForbidden, "domain not allowed")
}

func (s *Service) logFailure(ctx context.Context, orgDomain, msg string, err error) {
	s.logger.ErrorContext(ctx, msg,
		"correlation_id", requestcontext.RequestID(ctx),
		"org_domain", orgDomain,
		"outcome", outcomeOf(err),
		"error", err,
	)
}

// provisioningError keeps CodeUnavailable and CodeTimeout from the credential
// exchange and reports everything else, configuration included, as CodeInternal.
func provisioningError(err error, msg string) error {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnavailable, dErrors.CodeTimeout:
		return err
	}
	return &dErrors.Error{Code: dErrors.CodeInternal, Message: msg, Err: err}
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	return string(dErrors.CodeOf(err))
}

type noopMetrics struct{}

func (noopMetrics) IncrementUsersCreated() {}
