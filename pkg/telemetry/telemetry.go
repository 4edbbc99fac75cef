// Package telemetry wires OpenTelemetry tracing/metrics and structured
// slog logging for the registry core. Spans and metrics are recorded
// against an in-process SDK instance, with no OTLP exporter wired by
// default; a caller can attach a real exporter via the standard SDK
// reader/span processor options on the returned providers.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the Provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = "bytecodealliance-registry"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.1.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	return c
}

// Provider bundles a tracer, a meter, and a component-scoped slog
// logger, and the submission-path RED metrics the core records.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	submissions metric.Int64Counter
	rejections  metric.Int64Counter
	checkpoints metric.Int64Counter
}

// New creates a Provider. Spans and metrics are recorded against an
// in-process SDK instance; attach exporters by composing options on
// the returned TracerProvider/MeterProvider if a caller needs export.
func New(cfg Config) (*Provider, error) {
	cfg = cfg.withDefaults()

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
			attribute.String("registry.component", "core"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	p := &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer("registry.core"),
		meter:          mp.Meter("registry.core"),
		logger:         slog.Default().With("component", "registry.core"),
	}

	if p.submissions, err = p.meter.Int64Counter("registry.submissions.total",
		metric.WithDescription("operator and package record submissions processed")); err != nil {
		return nil, err
	}
	if p.rejections, err = p.meter.Int64Counter("registry.rejections.total",
		metric.WithDescription("records rejected by a validator")); err != nil {
		return nil, err
	}
	if p.checkpoints, err = p.meter.Int64Counter("registry.checkpoints.installed",
		metric.WithDescription("checkpoints installed by the core")); err != nil {
		return nil, err
	}

	return p, nil
}

// Logger returns the component-scoped structured logger.
func (p *Provider) Logger() *slog.Logger { return p.logger }

// StartSpan starts a span named name.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordSubmission increments the submission counter.
func (p *Provider) RecordSubmission(ctx context.Context, attrs ...attribute.KeyValue) {
	p.submissions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRejection increments the rejection counter.
func (p *Provider) RecordRejection(ctx context.Context, attrs ...attribute.KeyValue) {
	p.rejections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCheckpoint increments the checkpoint counter.
func (p *Provider) RecordCheckpoint(ctx context.Context, attrs ...attribute.KeyValue) {
	p.checkpoints.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Shutdown tears down the tracer and meter providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return err
	}
	return p.meterProvider.Shutdown(ctx)
}

// LogAttr keys scoped to this domain, following OpenTelemetry's
// semantic-convention-style attribute naming.
const (
	AttrLogID        = "registry.log.id"
	AttrRecordID     = "registry.record.id"
	AttrCheckpointID = "registry.checkpoint.id"
	AttrPackageName  = "registry.package.name"
)
