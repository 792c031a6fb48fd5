package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewAddsServiceAndTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "debug", Service: "galoy", Env: "test", Writer: &buf})

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	Component(logger, "payments").DebugContext(ctx, "hello")
	span.End()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "galoy", rec["service"])
	require.Equal(t, "test", rec["env"])
	require.Equal(t, "payments", rec["component"])
	require.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
}

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "nonsense", Format: "text", Writer: &buf})
	logger.Debug("hidden")
	require.Zero(t, buf.Len())
	logger.Info("shown")
	require.Contains(t, buf.String(), "msg=shown")
}
