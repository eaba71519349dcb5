package requestcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, ClientIP(ctx))
	assert.Empty(t, UserAgent(ctx))

	ctx = WithRequestID(ctx, "req-42")
	ctx = WithClientMetadata(ctx, "10.0.0.7", "curl/8.0")

	assert.Equal(t, "req-42", RequestID(ctx))
	assert.Equal(t, "10.0.0.7", ClientIP(ctx))
	assert.Equal(t, "curl/8.0", UserAgent(ctx))
}
