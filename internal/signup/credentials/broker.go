// Package credentials exchanges the service's role for short-lived directory
// credentials and keeps the current set for reuse across requests.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"golang.org/x/sync/singleflight"

	"signup-api/internal/platform/metrics"
	"signup-api/internal/signup/models"
	dErrors "signup-api/pkg/domain-errors"
	"signup-api/pkg/requestcontext"
)

const (
	// SessionDuration is the lifetime requested for each exchange.
	SessionDuration = time.Hour
	// ExpiryBuffer is how long before expiry cached credentials stop being reused.
	ExpiryBuffer = 5 * time.Minute

	DefaultTimeout = 5 * time.Second

	sessionNamePrefix = "signup-api-"
)

// STSAPI is the subset of the STS client used by the broker.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// Metrics records exchanges. Implemented by *metrics.Metrics.
type Metrics interface {
	IncrementCredentialExchanges(result string)
}

// Config identifies the role to assume.
type Config struct {
	RoleARN    string
	ExternalID string
	Timeout    time.Duration
}

// Broker caches one set of brokered credentials per process.
type Broker struct {
	client  STSAPI
	cfg     Config
	cached  atomic.Pointer[models.BrokeredCredentials]
	group   singleflight.Group
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Broker)

func WithMetrics(m Metrics) Option {
	return func(b *Broker) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		if now != nil {
			b.now = now
		}
	}
}

func New(client STSAPI, cfg Config, logger *slog.Logger, opts ...Option) *Broker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	b := &Broker{
		client:  client,
		cfg:     cfg,
		metrics: noopMetrics{},
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetCredentials returns the cached credentials while they have more than
// ExpiryBuffer left. Otherwise it performs one exchange (shared by concurrent
// callers), replaces the cache and reports Refreshed so pooled clients rebuild.
func (b *Broker) GetCredentials(ctx context.Context) (models.CredentialsResult, error) {
	if b.cfg.RoleARN == "" {
		return models.CredentialsResult{}, dErrors.New(dErrors.CodeConfiguration, "missing configuration: role_arn")
	}

	if creds := b.cached.Load(); creds.ValidFor(b.now(), ExpiryBuffer) {
		return models.CredentialsResult{Credentials: creds}, nil
	}

	v, err, _ := b.group.Do("credentials", func() (any, error) {
		return b.exchange(ctx)
	})
	if err != nil {
		return models.CredentialsResult{}, err
	}
	return models.CredentialsResult{Credentials: v.(*models.BrokeredCredentials), Refreshed: true}, nil
}

func (b *Broker) exchange(ctx context.Context) (*models.BrokeredCredentials, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.Timeout)
	defer cancel()

	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(b.cfg.RoleARN),
		RoleSessionName: aws.String(fmt.Sprintf("%s%d", sessionNamePrefix, b.now().Unix())),
		DurationSeconds: aws.Int32(int32(SessionDuration.Seconds())),
	}
	if b.cfg.ExternalID != "" {
		input.ExternalId = aws.String(b.cfg.ExternalID)
	}

	out, err := b.client.AssumeRole(ctx, input)
	if err == nil && (out == nil || out.Credentials == nil) {
		err = errors.New("assume role returned no credentials")
	}
	if err != nil {
		b.metrics.IncrementCredentialExchanges(metrics.ExchangeError)
		b.logger.ErrorContext(ctx, "credential exchange failed",
			"correlation_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.Wrap(err, exchangeFailureCode(err), "credential exchange failed")
	}

	creds := &models.BrokeredCredentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Expiration:      aws.ToTime(out.Credentials.Expiration),
	}
	b.cached.Store(creds)
	b.metrics.IncrementCredentialExchanges(metrics.ExchangeSuccess)
	b.logger.InfoContext(ctx, "credentials refreshed",
		"correlation_id", requestcontext.RequestID(ctx),
		"expires_at", creds.Expiration.UTC().Format(time.RFC3339),
	)
	return creds, nil
}

// Expiry returns when the cached credentials expire, or false before the
// first successful exchange.
func (b *Broker) Expiry() (time.Time, bool) {
	creds := b.cached.Load()
	if creds == nil {
		return time.Time{}, false
	}
	return creds.Expiration, true
}

// exchangeFailureCode separates an exchange that ran out of time from one the
// token service refused or could not serve.
func exchangeFailureCode(err error) dErrors.Code {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.CodeTimeout
	}
	return dErrors.CodeUnavailable
}

type noopMetrics struct{}

func (noopMetrics) IncrementCredentialExchanges(string) {}
