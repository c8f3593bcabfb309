// Package obs provides OpenTelemetry-based tracing and metrics for the
// moduforge core: the state reducer's fixed-point loop and the
// transaction commit path are the two operations worth instrumenting
// from outside, since both can run plugin-supplied code of unknown
// cost.
package obs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // e.g., "localhost:4317" for gRPC
	SampleRate     float64       // 0.0 to 1.0, default 1.0 (sample all)
	BatchTimeout   time.Duration // how long to wait before sending batched spans
	Enabled        bool          // disabled by default for library embedding
	Insecure       bool          // use insecure connection (dev only)
}

// DefaultConfig returns library-safe defaults: telemetry disabled until
// the embedding application opts in.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "moduforge-core",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        false,
		Insecure:       false,
	}
}

// Provider manages OpenTelemetry trace and metric providers for the core.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	stepsApplied    metric.Int64Counter
	hooksInvoked    metric.Int64Counter
	pluginErrors    metric.Int64Counter
	applyDuration   metric.Float64Histogram
	activeTxns      metric.Int64UpDownCounter
}

// New creates a new observability provider. With config.Enabled false (the
// default), New returns a no-op provider whose methods are safe to call.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	p := &Provider{
		config: cfg,
		logger: slog.Default().With("component", "obs"),
	}

	if !cfg.Enabled {
		p.logger.InfoContext(ctx, "moduforge telemetry disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
			attribute.String("moduforge.component", "core"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init metric provider: %w", err)
	}

	p.tracer = otel.Tracer("moduforge.core", trace.WithInstrumentationVersion(cfg.ServiceVersion))
	p.meter = otel.Meter("moduforge.core", metric.WithInstrumentationVersion(cfg.ServiceVersion))

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	p.logger.InfoContext(ctx, "moduforge telemetry initialized",
		"service", cfg.ServiceName, "environment", cfg.Environment, "endpoint", cfg.OTLPEndpoint)

	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)

	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initMetrics() error {
	var err error

	p.stepsApplied, err = p.meter.Int64Counter("moduforge.steps.applied",
		metric.WithDescription("Steps successfully applied to a draft"),
		metric.WithUnit("{step}"))
	if err != nil {
		return err
	}

	p.hooksInvoked, err = p.meter.Int64Counter("moduforge.plugin_hooks.invoked",
		metric.WithDescription("Plugin filter/append-transaction hooks invoked"),
		metric.WithUnit("{invocation}"))
	if err != nil {
		return err
	}

	p.pluginErrors, err = p.meter.Int64Counter("moduforge.plugin_hooks.errors",
		metric.WithDescription("Plugin hook invocations that returned an error"),
		metric.WithUnit("{error}"))
	if err != nil {
		return err
	}

	p.applyDuration, err = p.meter.Float64Histogram("moduforge.state.apply.duration",
		metric.WithDescription("Duration of State.Apply fixed-point loops"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0))
	if err != nil {
		return err
	}

	p.activeTxns, err = p.meter.Int64UpDownCounter("moduforge.transactions.active",
		metric.WithDescription("Transactions currently being committed"),
		metric.WithUnit("{transaction}"))
	return err
}

// Shutdown flushes and stops the providers. Safe to call on a disabled
// provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "shutdown metric provider", "error", err)
		}
	}
	return nil
}

// Tracer returns the provider's tracer, falling back to the global
// no-op tracer when telemetry is disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer("moduforge.core")
	}
	return p.tracer
}

// StartApplySpan starts the span wrapping one State.Apply fixed-point loop.
func (p *Provider) StartApplySpan(ctx context.Context, txnID uint64) (context.Context, func(transactions int, err error)) {
	start := time.Now()
	ctx, span := p.Tracer().Start(ctx, "moduforge.state.apply",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int64("moduforge.transaction.id", int64(txnID))),
	)
	if p.activeTxns != nil {
		p.activeTxns.Add(ctx, 1)
	}

	return ctx, func(transactions int, err error) {
		if p.activeTxns != nil {
			p.activeTxns.Add(ctx, -1)
		}
		if p.applyDuration != nil {
			p.applyDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(attribute.Int("moduforge.transactions.count", transactions)))
		}
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

// RecordStepApplied increments the steps-applied counter.
func (p *Provider) RecordStepApplied(ctx context.Context, stepName string) {
	if p.stepsApplied != nil {
		p.stepsApplied.Add(ctx, 1, metric.WithAttributes(attribute.String("moduforge.step.name", stepName)))
	}
}

// RecordHookInvocation records a plugin hook invocation and, when err is
// non-nil, a corresponding hook error.
func (p *Provider) RecordHookInvocation(ctx context.Context, pluginID string, hook string, err error) {
	attrs := metric.WithAttributes(
		attribute.String("moduforge.plugin.id", pluginID),
		attribute.String("moduforge.plugin.hook", hook),
	)
	if p.hooksInvoked != nil {
		p.hooksInvoked.Add(ctx, 1, attrs)
	}
	if err != nil && p.pluginErrors != nil {
		p.pluginErrors.Add(ctx, 1, attrs)
	}
}
