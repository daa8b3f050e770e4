package tracer

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"ai-genbot-gateway/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const serviceName = "genbot-gateway"

// Shutdown flushes buffered spans.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup installs a global tracer provider exporting over OTLP HTTP. With
// tracing disabled it changes nothing and returns a no-op Shutdown. Spans
// cover webhook requests, job runs and provider calls.
func Setup(ctx context.Context, cfg *config.Config) (Shutdown, error) {
	if !cfg.Tracing.Enabled {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Tracing.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return noop, fmt.Errorf("otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler(cfg.Tracing.SampleRatio)),
		sdktrace.WithResource(newResource(cfg)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Child spans follow the caller's decision so a job run is kept or dropped
// together with the update that queued it.
func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func newResource(cfg *config.Config) *resource.Resource {
	instance, _ := os.Hostname()
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceInstanceID(instance),
		semconv.DeploymentEnvironment(cfg.App.Environment),
		attribute.String("genbot.telegram.mode", cfg.Telegram.Mode),
		attribute.String("genbot.broker.kind", cfg.Broker.Kind),
		attribute.String("genbot.broker.queue", cfg.Broker.Queue),
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(info.Main.Version))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}
