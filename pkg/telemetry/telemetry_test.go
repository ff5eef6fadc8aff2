package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRecorderRecordsWithoutExporter(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	ctx := context.Background()
	r.RecordStep(ctx, "exec-1")
	r.RecordVerdict(ctx, "allow")
	r.RecordVerificationFailure(ctx, "test-schema-v1")

	require.NoError(t, r.Shutdown(ctx))
}

func TestTracerIsUsable(t *testing.T) {
	provider := NewTracerProvider()
	defer provider.Shutdown(context.Background())

	tracer := Tracer(provider)
	_, span := tracer.Start(context.Background(), "test-span")
	span.End()
}

func TestStepLoggerFallsBackToDefault(t *testing.T) {
	logger := StepLogger(nil, "exec-1", 3)
	require.NotNil(t, logger)
}
