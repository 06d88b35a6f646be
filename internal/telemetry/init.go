package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"chordring/internal/config"
	"chordring/internal/domain"
)

// InitTracer configures the global OpenTelemetry tracer provider for this
// node according to cfg, returning a shutdown function the caller must
// invoke before exiting. If tracing is disabled, the returned function is
// a no-op.
func InitTracer(cfg config.TelemetryConfig, serviceName string, nodeID domain.ID) func(context.Context) error {
	if !cfg.Tracing.Enabled {
		log.Println("tracing disabled")
		return func(context.Context) error { return nil }
	}

	attrs := append(
		[]attribute.KeyValue{semconv.ServiceNameKey.String(serviceName)},
		IDAttributes("dht.node.id", nodeID)...,
	)

	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		log.Fatalf("telemetry: failed to build resource: %v", err)
	}

	var tp *sdktrace.TracerProvider
	switch cfg.Tracing.Exporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			log.Fatalf("telemetry: failed to initialize stdout exporter: %v", err)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
	case "otlp":
		exp, err := otlptracehttp.New(
			context.Background(),
			otlptracehttp.WithEndpoint(cfg.Tracing.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			log.Fatalf("telemetry: failed to initialize OTLP exporter: %v", err)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
	default:
		panic(fmt.Sprintf("telemetry: unsupported exporter: %s", cfg.Tracing.Exporter))
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return tp.Shutdown
}

// IDAttributes renders a ring identifier as an OpenTelemetry attribute
// under the given key, in its fixed-width hex form.
func IDAttributes(key string, id domain.ID) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(key, id.ToHexString(false)),
	}
}
