package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

const (
	ServiceName    = "directstock"
	ServiceVersion = "1.0.0"
)

// TracingConfig selects the OTLP/HTTP endpoint. With Enabled false spans are still
// created and propagated but never exported.
type TracingConfig struct {
	Enabled    bool
	Endpoint   string
	AuthHeader string
}

// SetupTracing installs the global propagator and tracer provider. The returned shutdown
// flushes pending spans.
func SetupTracing(ctx context.Context, cfg TracingConfig, logger *zap.Logger) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs error
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			errs = errors.Join(errs, shutdownFuncs[i](ctx))
		}
		shutdownFuncs = nil
		return errs
	}

	// Trace context travels in Kafka headers of published movements
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return shutdown, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.Enabled {
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.AuthHeader != "" {
			exporterOpts = append(exporterOpts, otlptracehttp.WithHeaders(map[string]string{"Authorization": cfg.AuthHeader}))
		} else {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return shutdown, fmt.Errorf("failed to setup OTLP trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		))
		logger.Info("Tracing exporter configured", zap.String("endpoint", cfg.Endpoint))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	return shutdown, nil
}
