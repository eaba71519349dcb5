package credentials

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"signup-api/internal/platform/metrics"
	dErrors "signup-api/pkg/domain-errors"
)

type fakeSTS struct {
	mu     sync.Mutex
	calls  atomic.Int32
	inputs []*sts.AssumeRoleInput
	expiry func() time.Time
	err    error
	block  chan struct{}
	// hang makes the call wait for its context to end.
	hang bool
}

func (f *fakeSTS) AssumeRole(ctx context.Context, in *sts.AssumeRoleInput, _ ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &sts.AssumeRoleOutput{Credentials: &types.Credentials{
		AccessKeyId:     aws.String("AKIA" + string(rune('A'+n))),
		SecretAccessKey: aws.String("secret"),
		SessionToken:    aws.String("token"),
		Expiration:      aws.Time(f.expiry()),
	}}, nil
}

type BrokerSuite struct {
	suite.Suite
	now     time.Time
	sts     *fakeSTS
	metrics *metrics.Metrics
}

func TestBrokerSuite(t *testing.T) {
	suite.Run(t, new(BrokerSuite))
}

func (s *BrokerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.sts = &fakeSTS{expiry: func() time.Time { return s.now.Add(time.Hour) }}
	s.metrics = metrics.New(prometheus.NewRegistry())
}

func (s *BrokerSuite) newBroker(cfg Config) *Broker {
	return New(s.sts, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return s.now }),
		WithMetrics(s.metrics),
	)
}

func (s *BrokerSuite) defaultConfig() Config {
	return Config{RoleARN: "arn:aws:iam::111122223333:role/signup", ExternalID: "ext-123"}
}

func (s *BrokerSuite) TestFirstCallExchanges() {
	broker := s.newBroker(s.defaultConfig())

	res, err := broker.GetCredentials(context.Background())
	s.Require().NoError(err)
	s.True(res.Refreshed)
	s.Equal("secret", res.Credentials.SecretAccessKey)
	s.Equal(s.now.Add(time.Hour), res.Credentials.Expiration)

	s.Require().Len(s.sts.inputs, 1)
	in := s.sts.inputs[0]
	s.Equal("arn:aws:iam::111122223333:role/signup", aws.ToString(in.RoleArn))
	s.Equal("ext-123", aws.ToString(in.ExternalId))
	s.Equal(int32(3600), aws.ToInt32(in.DurationSeconds))
	s.Equal("signup-api-1772355600", aws.ToString(in.RoleSessionName))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CredentialExchanges.WithLabelValues(metrics.ExchangeSuccess)))
}

func (s *BrokerSuite) TestValidCredentialsAreReused() {
	broker := s.newBroker(s.defaultConfig())
	first, err := broker.GetCredentials(context.Background())
	s.Require().NoError(err)

	s.now = s.now.Add(54 * time.Minute)
	second, err := broker.GetCredentials(context.Background())
	s.Require().NoError(err)
	s.False(second.Refreshed)
	s.Same(first.Credentials, second.Credentials)
	s.Equal(int32(1), s.sts.calls.Load())
}

func (s *BrokerSuite) TestCredentialsNearExpiryAreRefreshed() {
	broker := s.newBroker(s.defaultConfig())
	first, err := broker.GetCredentials(context.Background())
	s.Require().NoError(err)

	s.now = s.now.Add(55 * time.Minute)
	second, err := broker.GetCredentials(context.Background())
	s.Require().NoError(err)
	s.True(second.Refreshed)
	s.NotSame(first.Credentials, second.Credentials)
	s.Equal(int32(2), s.sts.calls.Load())
}

func (s *BrokerSuite) TestMissingRoleIsConfigurationError() {
	broker := s.newBroker(Config{ExternalID: "ext-123"})

	_, err := broker.GetCredentials(context.Background())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConfiguration))
	s.Equal(int32(0), s.sts.calls.Load())
}

func (s *BrokerSuite) TestExchangeFailureIsUnavailable() {
	s.sts.err = errors.New("AccessDenied")
	broker := s.newBroker(s.defaultConfig())

	res, err := broker.GetCredentials(context.Background())
	s.Require().Error(err)
	s.Nil(res.Credentials)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.ErrorContains(err, "AccessDenied")
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CredentialExchanges.WithLabelValues(metrics.ExchangeError)))
}

func (s *BrokerSuite) TestExchangeDeadlineIsTimeout() {
	s.sts.hang = true
	cfg := s.defaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	broker := s.newBroker(cfg)

	_, err := broker.GetCredentials(context.Background())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.False(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CredentialExchanges.WithLabelValues(metrics.ExchangeError)))
}

func (s *BrokerSuite) TestExpiry() {
	broker := s.newBroker(s.defaultConfig())

	_, ok := broker.Expiry()
	s.False(ok)

	_, err := broker.GetCredentials(context.Background())
	s.Require().NoError(err)

	expiry, ok := broker.Expiry()
	s.True(ok)
	s.Equal(s.now.Add(time.Hour), expiry)
}

func (s *BrokerSuite) TestConcurrentCallersShareOneExchange() {
	s.sts.block = make(chan struct{})
	broker := s.newBroker(s.defaultConfig())

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			res, err := broker.GetCredentials(context.Background())
			if err == nil && res.Credentials == nil {
				return errors.New("nil credentials")
			}
			return err
		})
	}
	s.Eventually(func() bool { return s.sts.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(s.sts.block)

	s.Require().NoError(g.Wait())
	s.Equal(int32(1), s.sts.calls.Load())
}
