package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerExporterKind selects which backend InitTracer wires to the SDK.
type TracerExporterKind string

const (
	ExporterNone   TracerExporterKind = ""
	ExporterJaeger TracerExporterKind = "jaeger"
	ExporterZipkin TracerExporterKind = "zipkin"
)

// InitTracer configures the global OTel tracer provider. If kind is
// ExporterNone, it installs a tracer that samples nothing, so tracing
// stays a true no-op when TRACE_EXPORTER is unset.
func InitTracer(serviceName string, kind TracerExporterKind, endpoint string) (func(context.Context) error, error) {
	if kind == ExporterNone {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		otel.SetTracerProvider(tp)
		return tp.Shutdown, nil
	}

	var exporter sdktrace.SpanExporter
	var err error

	switch kind {
	case ExporterJaeger:
		exporter, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	case ExporterZipkin:
		exporter, err = zipkin.New(endpoint)
	default:
		return nil, fmt.Errorf("unknown trace exporter kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", kind, err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the package-level tracer. The scheduler and the HTTP
// handlers do not start spans with it.
func Tracer() trace.Tracer {
	return otel.Tracer("dnsguard")
}
