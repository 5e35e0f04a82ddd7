package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-chat-router/internal/config"
)

func TestSetupTracing_Disabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.Config{OTLPEndpoint: ""})
	require.NoError(t, err)
	assert.Nil(t, shutdown)
}

func TestSetupTracing_WithEndpoint(t *testing.T) {
	cfg := config.Config{OTLPEndpoint: "localhost:4317", OTELServiceName: "test-service"}
	// The gRPC exporter connects lazily, so setup succeeds without a collector.
	shutdown, err := SetupTracing(context.Background(), cfg)
	if err != nil {
		assert.Nil(t, shutdown)
		return
	}
	if shutdown != nil {
		_ = shutdown(context.Background())
	}
}

func TestStartSpan_EndSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test", "op", "k", "v", "dangling")
	require.NotNil(t, ctx)
	EndSpan(span, errors.New("boom"))
	_, span = StartSpan(ctx, "test", "op2")
	EndSpan(span, nil)
}
