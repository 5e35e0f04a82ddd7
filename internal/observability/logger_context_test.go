package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextWithLoggerAndLoggerFromContext(t *testing.T) {
	lg := slog.Default()
	base := context.Background()

	withLogger := ContextWithLogger(base, lg)
	assert.NotEqual(t, base, withLogger)
	assert.Same(t, lg, LoggerFromContext(withLogger))
	assert.Equal(t, base, ContextWithLogger(base, nil))
	assert.NotNil(t, LoggerFromContext(context.Background()))
}

func TestContextWithRequestID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(context.Background()))

	base := context.Background()
	assert.Equal(t, base, ContextWithRequestID(base, ""))
}

func TestContextWithChat(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := ContextWithChat(ContextWithLogger(context.Background(), lg), -10042)

	id, ok := ChatIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(-10042), id)

	LoggerFromContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), "chat_id=-10042")

	_, ok = ChatIDFromContext(context.Background())
	assert.False(t, ok)
}
