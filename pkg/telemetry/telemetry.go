package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
)

var (
	globalConfig *Config
	configOnce   sync.Once
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs a global TracerProvider exporting over OTLP. When
// OTEL_ENABLED is not "true" it leaves the no-op provider in place.
//
// Environment variables:
//
//	OTEL_ENABLED                    enable tracing (default false)
//	OTEL_SERVICE_NAME               service name (default heapscan)
//	OTEL_SERVICE_VERSION            service version (default unknown)
//	OTEL_EXPORTER_OTLP_ENDPOINT     collector endpoint
//	OTEL_EXPORTER_OTLP_PROTOCOL     grpc or http/protobuf (default grpc)
//	OTEL_EXPORTER_OTLP_HEADERS      exporter headers, k=v pairs
//	OTEL_EXPORTER_OTLP_INSECURE     disable TLS
//	OTEL_TRACES_SAMPLER             sampler name (default always_on)
//	OTEL_TRACES_SAMPLER_ARG         sampler ratio
//	OTEL_RESOURCE_ATTRIBUTES        extra resource attributes, k=v pairs
func Init(ctx context.Context) (ShutdownFunc, error) {
	cfg := loadConfig()
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}
	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	tp := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(exporter),
		trace.WithSampler(createSampler(cfg)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// Enabled reports whether tracing was requested.
func Enabled() bool {
	return loadConfig().Enabled
}

// GetConfig returns the cached configuration.
func GetConfig() *Config {
	return loadConfig()
}

func loadConfig() *Config {
	configOnce.Do(func() {
		globalConfig = LoadFromEnv()
	})
	return globalConfig
}
