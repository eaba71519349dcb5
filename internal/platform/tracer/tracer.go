// Package tracer is a small tracing facade over OpenTelemetry so signup
// components can emit spans without importing otel APIs directly.
//
// Implementations:
//   - NoopTracer: tests
//   - OTelTracer: production, backed by the global tracer provider
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks the span as failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans. Values must never carry
// names or email addresses.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanSignupDomains  = "signup.domains"
	SpanSignupCreate   = "signup.create"
	SpanDomainsRefresh = "signup.domains.refresh"
)

// Attribute keys.
const (
	AttrOrgDomain     = "org.domain"
	AttrCorrelationID = "correlation_id"
	AttrOutcome       = "outcome"
	AttrDomainCount   = "domains.count"
)
