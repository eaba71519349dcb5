// Package health serves liveness, readiness and the signup dependency status.
package health

import (
	"context"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"signup-api/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
)

// CheckFunc returns nil when the dependency can serve traffic.
type CheckFunc func(ctx context.Context) error

// AllowlistSource exposes the cached domain allowlist. Implemented by *domains.Cache.
type AllowlistSource interface {
	Snapshot() (domains int, fetchedAt time.Time, ok bool)
}

// CredentialSource exposes the brokered directory credentials. Implemented by
// *credentials.Broker.
type CredentialSource interface {
	Expiry() (time.Time, bool)
}

type Handler struct {
	environment string
	now         func() time.Time

	allowlist    AllowlistSource
	allowlistTTL time.Duration

	credentials   CredentialSource
	refreshBuffer time.Duration

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

type Option func(*Handler)

// WithAllowlist reports the allowlist snapshot; older than ttl counts as stale.
func WithAllowlist(src AllowlistSource, ttl time.Duration) Option {
	return func(h *Handler) {
		h.allowlist = src
		h.allowlistTTL = ttl
	}
}

// WithCredentials reports credential expiry; within buffer of expiry the next
// provisioning call will refresh them.
func WithCredentials(src CredentialSource, buffer time.Duration) Option {
	return func(h *Handler) {
		h.credentials = src
		h.refreshBuffer = buffer
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func New(environment string, opts ...Option) *Handler {
	h := &Handler{
		environment: environment,
		now:         time.Now,
		checks:      make(map[string]CheckFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterCheck adds a named readiness check.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
	r.Get("/health/status", h.HandleStatus)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

// HandleLiveness answers 200 while the process is serving.
func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: statusOK})
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs every registered check and answers 503 if any fails.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := maps.Clone(h.checks)
	h.mu.RUnlock()

	response := ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(checks))}
	status := http.StatusOK
	for name, check := range checks {
		if err := check(r.Context()); err != nil {
			response.Checks[name] = "down: " + err.Error()
			response.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Checks[name] = "up"
	}
	httputil.WriteJSON(w, status, response)
}

// AllowlistStatus describes the domain snapshot signups are authorized against.
type AllowlistStatus struct {
	Loaded     bool  `json:"loaded"`
	Domains    int   `json:"domains"`
	AgeSeconds int64 `json:"age_seconds"`
	Stale      bool  `json:"stale"`
}

// CredentialStatus describes the cached cross-account credentials. They are
// fetched lazily, so an empty cache is not a fault.
type CredentialStatus struct {
	Cached           bool  `json:"cached"`
	ExpiresInSeconds int64 `json:"expires_in_seconds"`
	RefreshDue       bool  `json:"refresh_due"`
}

type StatusResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Environment string            `json:"environment"`
	Allowlist   *AllowlistStatus  `json:"allowlist,omitempty"`
	Credentials *CredentialStatus `json:"credentials,omitempty"`
}

// HandleStatus reports the state of the allowlist and credential caches. It
// is degraded while signups would be refused or served from a stale list,
// and always answers 200.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	response := StatusResponse{
		Status:      statusOK,
		Version:     Version,
		Environment: h.environment,
	}

	if h.allowlist != nil {
		a := h.allowlistStatus(now)
		if !a.Loaded || a.Stale {
			response.Status = statusDegraded
		}
		response.Allowlist = &a
	}
	if h.credentials != nil {
		c := h.credentialStatus(now)
		response.Credentials = &c
	}

	httputil.WriteJSON(w, http.StatusOK, response)
}

func (h *Handler) allowlistStatus(now time.Time) AllowlistStatus {
	count, fetchedAt, ok := h.allowlist.Snapshot()
	if !ok {
		return AllowlistStatus{}
	}
	age := now.Sub(fetchedAt)
	return AllowlistStatus{
		Loaded:     true,
		Domains:    count,
		AgeSeconds: int64(age.Seconds()),
		Stale:      h.allowlistTTL > 0 && age > h.allowlistTTL,
	}
}

func (h *Handler) credentialStatus(now time.Time) CredentialStatus {
	expiry, ok := h.credentials.Expiry()
	if !ok {
		return CredentialStatus{RefreshDue: true}
	}
	remaining := expiry.Sub(now)
	return CredentialStatus{
		Cached:           true,
		ExpiresInSeconds: max(int64(remaining.Seconds()), 0),
		RefreshDue:       remaining <= h.refreshBuffer,
	}
}
