package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain cache event labels.
const (
	DomainCacheHit       = "hit"
	DomainCacheRefresh   = "refresh"
	DomainCacheStale     = "stale"
	DomainCacheMissError = "miss_error"
)

// Credential exchange result labels.
const (
	ExchangeSuccess = "success"
	ExchangeError   = "error"
)

// Metrics holds all Prometheus metrics for the signup service
type Metrics struct {
	UsersCreated        prometheus.Counter
	SignupRequests      *prometheus.CounterVec
	DomainCacheEvents   *prometheus.CounterVec
	DomainCacheAge      prometheus.Gauge
	CredentialExchanges *prometheus.CounterVec
}

// New creates all metrics and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UsersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "signup_users_created_total",
			Help: "Total number of directory users created by signup",
		}),
		SignupRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_requests_total",
			Help: "Total number of signup requests, labeled by outcome code",
		}, []string{"outcome"}),
		DomainCacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_domain_cache_events_total",
			Help: "Domain allowlist lookups, labeled by hit, refresh, stale or miss_error",
		}, []string{"result"}),
		DomainCacheAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signup_domain_cache_age_seconds",
			Help: "Age of the domain allowlist snapshot when last served",
		}),
		CredentialExchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_credential_exchanges_total",
			Help: "Total number of role credential exchanges, labeled by result",
		}, []string{"result"}),
	}
}

// IncrementUsersCreated increments the users created counter by 1
func (m *Metrics) IncrementUsersCreated() {
	m.UsersCreated.Inc()
}

// IncrementSignupRequests counts a finished signup request by its response code.
func (m *Metrics) IncrementSignupRequests(outcome string) {
	m.SignupRequests.WithLabelValues(outcome).Inc()
}

// RecordDomainCacheEvent counts an allowlist lookup and records the age of the
// snapshot that served it.
func (m *Metrics) RecordDomainCacheEvent(result string, ageSeconds float64) {
	m.DomainCacheEvents.WithLabelValues(result).Inc()
	if result != DomainCacheMissError {
		m.DomainCacheAge.Set(ageSeconds)
	}
}

func (m *Metrics) IncrementCredentialExchanges(result string) {
	m.CredentialExchanges.WithLabelValues(result).Inc()
}
