package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextFieldsAreAttached(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core))

	ctx := WithTraceID(context.Background(), "req-1")
	ctx = WithOrderID(ctx, "order-1")
	ctx = WithTry(ctx, 3)
	ctx = WithWorkerID(ctx, 0)
	log.Warnf(ctx, "attempt %d failed", 3)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "attempt 3 failed", entry.Message)
	assert.Equal(t, map[string]interface{}{
		"trace_id":  "req-1",
		"order_id":  "order-1",
		"try":       int64(3),
		"worker_id": int64(0),
	}, entry.ContextMap())
}

func TestDebugSuppressedAboveLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewFromZap(zap.New(core))

	log.Debugf(context.Background(), "hidden")
	log.Infof(context.Background(), "shown")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
	assert.Equal(t, "", TraceID(context.Background()))
}
