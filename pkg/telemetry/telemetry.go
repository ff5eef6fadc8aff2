// Package telemetry provides the structured logging, metric instruments,
// and trace spans the executor emits on every step. No exporter is wired
// by default — the meter and tracer providers are in-process OpenTelemetry
// SDK instances a hosting application can attach its own reader/exporter
// to; this package never dials a collector on its own.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Recorder emits step-level metrics: counts of steps run, per-verdict-kind
// decisions, and verification failures. Safe for concurrent use — the
// underlying OTel instruments are themselves concurrency-safe.
type Recorder struct {
	meterProvider *sdkmetric.MeterProvider
	logger        *slog.Logger

	steps        metric.Int64Counter
	verdicts     metric.Int64Counter
	verifyFails  metric.Int64Counter
}

// New constructs a Recorder backed by a fresh, exporter-less
// sdkmetric.MeterProvider. Attach a reader via opts if you want the
// counters to actually be collected somewhere; with none, they accumulate
// in-process only.
func New(opts ...sdkmetric.Option) (*Recorder, error) {
	provider := sdkmetric.NewMeterProvider(opts...)
	meter := provider.Meter("stepguard.executor")

	steps, err := meter.Int64Counter("stepguard.steps.total",
		metric.WithDescription("Total executor steps run"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create steps counter: %w", err)
	}

	verdicts, err := meter.Int64Counter("stepguard.policy.verdicts.total",
		metric.WithDescription("Policy verdicts by kind"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create verdicts counter: %w", err)
	}

	verifyFails, err := meter.Int64Counter("stepguard.verify.failures.total",
		metric.WithDescription("Output verification failures"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create verify-failures counter: %w", err)
	}

	return &Recorder{
		meterProvider: provider,
		logger:        slog.Default().With("component", "telemetry"),
		steps:         steps,
		verdicts:      verdicts,
		verifyFails:   verifyFails,
	}, nil
}

// RecordStep increments the step counter for executionID.
func (r *Recorder) RecordStep(ctx context.Context, executionID string) {
	r.steps.Add(ctx, 1, metric.WithAttributes(attribute.String("execution_id", executionID)))
}

// RecordVerdict increments the per-kind verdict counter.
func (r *Recorder) RecordVerdict(ctx context.Context, kind string) {
	r.verdicts.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", kind)))
}

// RecordVerificationFailure increments the verification-failure counter.
func (r *Recorder) RecordVerificationFailure(ctx context.Context, schemaID string) {
	r.verifyFails.Add(ctx, 1, metric.WithAttributes(attribute.String("schema_id", schemaID)))
}

// Shutdown flushes and releases the underlying meter provider.
func (r *Recorder) Shutdown(ctx context.Context) error {
	return r.meterProvider.Shutdown(ctx)
}

// NewTracerProvider returns an exporter-less sdktrace.TracerProvider, for
// hosts that want to attach their own span processor/exporter. Tracer
// returns a trace.Tracer from it scoped to the executor's instrumentation
// name, suitable for passing to executor.WithTracer.
func NewTracerProvider(opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(opts...)
}

// Tracer returns the "stepguard.executor" tracer from provider.
func Tracer(provider *sdktrace.TracerProvider) trace.Tracer {
	return provider.Tracer("stepguard.executor")
}
