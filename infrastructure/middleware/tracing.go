package middleware

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracingOptions configures the OTLP/HTTP trace exporter.
type TracingOptions struct {
	// Endpoint is host:port or a full URL. Empty uses the exporter's
	// environment defaults (OTEL_EXPORTER_OTLP_ENDPOINT).
	Endpoint    string
	Insecure    bool
	ServiceName string
	// SampleRatio is the fraction of new traces sampled. Child spans follow
	// their parent's decision.
	SampleRatio float64
}

// NewTracerProvider builds a batching tracer provider that exports over
// OTLP/HTTP.
func NewTracerProvider(ctx context.Context, opts TracingOptions) (*sdktrace.TracerProvider, error) {
	var exporterOpts []otlptracehttp.Option
	switch {
	case strings.Contains(opts.Endpoint, "://"):
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpointURL(opts.Endpoint))
	case opts.Endpoint != "":
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpoint(opts.Endpoint))
	}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	name := opts.ServiceName
	if name == "" {
		name = "trustrag"
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
	), nil
}

// InstallTracing registers a tracer provider and the W3C trace-context
// propagator globally. The returned function flushes and stops the
// provider.
func InstallTracing(ctx context.Context, opts TracingOptions) (func(context.Context) error, error) {
	tp, err := NewTracerProvider(ctx, opts)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}
