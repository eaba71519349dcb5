// Package domains serves the allowlist of local authority email domains from a
// process-wide snapshot refreshed from the published upstream list.
package domains

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"signup-api/internal/platform/metrics"
	"signup-api/internal/platform/tracer"
	"signup-api/internal/signup/models"
	dErrors "signup-api/pkg/domain-errors"
	"signup-api/pkg/platform/circuit"
	"signup-api/pkg/requestcontext"
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultFetchTimeout = 3 * time.Second
)

// ErrNotLoaded is returned by Ready before the first snapshot exists.
var ErrNotLoaded = errors.New("domain allowlist not loaded")

// Metrics records cache events. Implemented by *metrics.Metrics.
type Metrics interface {
	RecordDomainCacheEvent(result string, ageSeconds float64)
}

// Cache holds at most one allowlist snapshot. Snapshots are replaced whole and
// never mutated, so readers never observe a partial update.
type Cache struct {
	sourceURL    string
	client       HTTPDoer
	ttl          time.Duration
	fetchTimeout time.Duration
	entry        atomic.Pointer[models.DomainCacheEntry]
	group        singleflight.Group
	breaker      *circuit.Breaker
	metrics      Metrics
	tracer       tracer.Tracer
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Cache) {
		if client != nil {
			c.client = client
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Cache) {
		if b != nil {
			c.breaker = b
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *Cache) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty cache reading from sourceURL.
func New(sourceURL string, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		sourceURL:    sourceURL,
		client:       &http.Client{},
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		breaker:      circuit.New("domain_source"),
		metrics:      noopMetrics{},
		tracer:       tracer.NewNoop(),
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetDomains returns the allowlist. A fresh snapshot is served without network
// access. Otherwise the upstream is fetched; on failure any earlier snapshot is
// served regardless of age, and only an empty cache yields CodeUnavailable.
func (c *Cache) GetDomains(ctx context.Context) ([]models.DomainInfo, error) {
	now := c.now()
	entry := c.entry.Load()
	if entry != nil && entry.Age(now) < c.ttl {
		c.metrics.RecordDomainCacheEvent(metrics.DomainCacheHit, entry.Age(now).Seconds())
		return entry.Data, nil
	}

	if entry != nil && !c.breaker.Allow() {
		c.logger.WarnContext(ctx, "domain source circuit open, serving stale allowlist",
			"correlation_id", requestcontext.RequestID(ctx),
			"circuit", c.breaker.Name(),
			"cache_age_seconds", int64(entry.Age(now).Seconds()),
		)
		c.metrics.RecordDomainCacheEvent(metrics.DomainCacheStale, entry.Age(now).Seconds())
		return entry.Data, nil
	}

	fresh, err, _ := c.group.Do("domains", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		if stale := c.entry.Load(); stale != nil {
			age := c.now().Sub(stale.Timestamp)
			c.logger.WarnContext(ctx, "domain refresh failed, serving stale allowlist",
				"correlation_id", requestcontext.RequestID(ctx),
				"cache_age_seconds", int64(age.Seconds()),
				"error", err,
			)
			c.metrics.RecordDomainCacheEvent(metrics.DomainCacheStale, age.Seconds())
			return stale.Data, nil
		}
		c.logger.ErrorContext(ctx, "domain allowlist unavailable",
			"correlation_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		c.metrics.RecordDomainCacheEvent(metrics.DomainCacheMissError, 0)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "domain allowlist unavailable")
	}

	c.metrics.RecordDomainCacheEvent(metrics.DomainCacheRefresh, 0)
	return fresh.(*models.DomainCacheEntry).Data, nil
}

// Ready reports ErrNotLoaded until a snapshot has been stored.
func (c *Cache) Ready(context.Context) error {
	if c.entry.Load() == nil {
		return ErrNotLoaded
	}
	return nil
}

// Snapshot reports the size and fetch time of the current allowlist. ok is
// false until the first successful fetch.
func (c *Cache) Snapshot() (domains int, fetchedAt time.Time, ok bool) {
	entry := c.entry.Load()
	if entry == nil {
		return 0, time.Time{}, false
	}
	return len(entry.Data), entry.Timestamp, true
}

// TTL is how long a snapshot is served before the next read refetches it.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// refresh fetches and swaps in a new snapshot. The fetch is detached from the
// caller's cancellation because other callers may share it through the
// singleflight group; it is still bounded by fetchTimeout.
func (c *Cache) refresh(ctx context.Context) (*models.DomainCacheEntry, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, tracer.SpanDomainsRefresh)
	data, err := c.load(ctx)
	if err != nil {
		span.End(err)
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.ErrorContext(ctx, "circuit breaker opened",
				"circuit", c.breaker.Name(),
				"error", err,
			)
		}
		return nil, err
	}
	span.SetAttributes(tracer.Int64(tracer.AttrDomainCount, int64(len(data))))
	span.End(nil)

	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "circuit breaker closed", "circuit", c.breaker.Name())
	}

	entry := &models.DomainCacheEntry{Data: data, Timestamp: c.now()}
	c.entry.Store(entry)
	c.logger.InfoContext(ctx, "domain allowlist refreshed",
		"correlation_id", requestcontext.RequestID(ctx),
		"domain_count", len(data),
	)
	return entry, nil
}

func (c *Cache) load(ctx context.Context) ([]models.DomainInfo, error) {
	body, err := fetchSource(ctx, c.client, c.sourceURL)
	if err != nil {
		return nil, err
	}
	return parseSource(body)
}

type noopMetrics struct{}

func (noopMetrics) RecordDomainCacheEvent(string, float64) {}
