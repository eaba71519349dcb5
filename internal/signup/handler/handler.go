package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"signup-api/internal/platform/privacy"
	"signup-api/internal/signup/models"
	dErrors "signup-api/pkg/domain-errors"
	"signup-api/pkg/platform/httputil"
	request "signup-api/pkg/platform/middleware/request"
	"signup-api/pkg/platform/validation"
	"signup-api/pkg/requestcontext"
	v "signup-api/pkg/validation"
)

const (
	// SignupHeader must accompany every signup POST with the value SignupHeaderValue.
	SignupHeader      = "X-NDX-Request"
	SignupHeaderValue = "signup-form"

	DefaultLoginRedirectURL = "/api/auth/login"

	outcomeSuccess = "SUCCESS"
)

// User-facing messages for non-validation failures.
const (
	msgNotFound           = "Not found"
	msgCSRFInvalid        = "Invalid request"
	msgRequestTooLarge    = "Request body too large"
	msgInvalidContentType = "Content-Type must be application/json"
	msgInvalidBody        = "Invalid request body"
	msgDomainNotAllowed   = "Your organisation's email domain is not eligible for signup"
	msgUserExists         = "An account with this email address already exists"
	msgServiceUnavailable = "Service temporarily unavailable, please try again later"
	msgServerError        = "An unexpected error occurred"
)

// Service defines the signup operations behind the HTTP surface.
type Service interface {
	Domains(ctx context.Context) ([]models.DomainInfo, error)
	Signup(ctx context.Context, req *models.SignupRequest) error
}

// Metrics records signup outcomes by response code.
type Metrics interface {
	IncrementSignupRequests(outcome string)
}

type Handler struct {
	service          Service
	logger           *slog.Logger
	metrics          Metrics
	loginRedirectURL string
}

type Option func(*Handler)

func WithMetrics(m Metrics) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithLoginRedirectURL sets where existing users are sent.
func WithLoginRedirectURL(url string) Option {
	return func(h *Handler) {
		if url != "" {
			h.loginRedirectURL = url
		}
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:          service,
		logger:           logger,
		metrics:          noopMetrics{},
		loginRedirectURL: DefaultLoginRedirectURL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/domains", h.HandleDomains)
	r.With(h.requireSignupHeader, h.requireJSON).Post("/signup", h.HandleSignup)
}

// HandleDomains returns the allowlist for the signup form's organisation picker.
// Fetch failures are logged by the cache.
func (h *Handler) HandleDomains(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	domains, err := h.service.Domains(ctx)
	if err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, httputil.CodeServiceUnavailable, msgServiceUnavailable)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, DomainsResponse{Domains: domains})
}

// HandleSignup runs body admission, field validation and email normalization,
// then hands the request to the service. The CSRF header and content type are
// checked by route middleware before this runs.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := httputil.ReadBody(w, r, validation.MaxBodySize)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			h.reject(ctx, w, http.StatusBadRequest, httputil.CodeRequestTooLarge, msgRequestTooLarge)
			return
		}
		h.reject(ctx, w, http.StatusBadRequest, httputil.CodeInvalidContentType, msgInvalidBody)
		return
	}

	var req models.SignupRequest
	if err := httputil.DecodeObject(body, &req); err != nil {
		h.logger.WarnContext(ctx, "signup body rejected",
			"correlation_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		h.reject(ctx, w, http.StatusBadRequest, httputil.CodeInvalidContentType, msgInvalidBody)
		return
	}

	if err := httputil.PrepareRequest(&req); err != nil {
		if fields := v.Fields(err); len(fields) > 0 {
			h.logger.InfoContext(ctx, "signup fields missing",
				"correlation_id", requestcontext.RequestID(ctx),
				"fields", fields,
			)
		}
		h.reject(ctx, w, http.StatusBadRequest, httputil.CodeInvalidEmail, err.Error())
		return
	}
	if err := req.Canonicalize(); err != nil {
		h.reject(ctx, w, http.StatusBadRequest, httputil.CodeInvalidEmail, err.Error())
		return
	}

	if err := h.service.Signup(ctx, &req); err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	h.metrics.IncrementSignupRequests(outcomeSuccess)
	httputil.WriteJSON(w, http.StatusOK, SignupResponse{Success: true})
}

// writeServiceError is the only place domain error codes become HTTP responses.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeForbidden:
		h.reject(ctx, w, http.StatusForbidden, httputil.CodeDomainNotAllowed, msgDomainNotAllowed)
	case dErrors.CodeConflict:
		h.metrics.IncrementSignupRequests(httputil.CodeUserExists)
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{
			Error:       httputil.CodeUserExists,
			Message:     msgUserExists,
			RedirectURL: h.loginRedirectURL,
		})
	case dErrors.CodeUnavailable, dErrors.CodeTimeout:
		h.reject(ctx, w, http.StatusServiceUnavailable, httputil.CodeServiceUnavailable, msgServiceUnavailable)
	default:
		h.reject(ctx, w, http.StatusInternalServerError, httputil.CodeServerError, msgServerError)
	}
}

func (h *Handler) reject(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	h.metrics.IncrementSignupRequests(code)
	if status < http.StatusInternalServerError {
		h.logger.InfoContext(ctx, "signup rejected",
			"correlation_id", requestcontext.RequestID(ctx),
			"outcome", code,
			"client", privacy.ClientFamily(requestcontext.UserAgent(ctx)),
		)
	}
	httputil.WriteError(w, status, code, message)
}

// requireSignupHeader rejects signup writes without the form's custom header.
// Browsers cannot attach it cross-origin without a preflight.
func (h *Handler) requireSignupHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(strings.TrimSpace(r.Header.Get(SignupHeader)), SignupHeaderValue) {
			h.reject(r.Context(), w, http.StatusForbidden, httputil.CodeCSRFInvalid, msgCSRFInvalid)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !request.IsJSON(r) {
			h.reject(r.Context(), w, http.StatusBadRequest, httputil.CodeInvalidContentType, msgInvalidContentType)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, msgNotFound)
}

type noopMetrics struct{}

func (noopMetrics) IncrementSignupRequests(string) {}
