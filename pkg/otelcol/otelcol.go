package otelcol

import (
	"context"
	"fmt"

	"miniapp-rewards/pkg/config"
	"miniapp-rewards/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module installs an OTLP tracer provider as the global one.
var Module = fx.Module("otelcol",
	fx.Provide(ProvideExporter, ProvideTrace),
	fx.Invoke(registerTracerProvider),
)

func ProvideExporter(cfg *config.Config) (trace.SpanExporter, error) {
	var (
		exporter *otlptrace.Exporter
		err      error
	)
	switch cfg.Otel.Protocol {
	case "", "http":
		exporter, err = exporters.ProvideHttp(cfg)
	case "grpc":
		exporter, err = exporters.ProvideGrpc(cfg)
	default:
		return nil, fmt.Errorf("unsupported OTEL.PROTOCOL %q", cfg.Otel.Protocol)
	}
	if err != nil {
		return nil, err
	}
	return exporter, nil
}

func Resource(cfg *config.Config) (*resource.Resource, error) {
	return resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
}

func ProvideTrace(cfg *config.Config, exporter trace.SpanExporter) (*trace.TracerProvider, error) {
	res, err := Resource(cfg)
	if err != nil {
		return nil, err
	}

	ratio := cfg.Otel.SampleRatio
	if ratio <= 0 {
		ratio = 1
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
		trace.WithBatcher(exporter),
	), nil
}

func registerTracerProvider(lc fx.Lifecycle, cfg *config.Config, tp *trace.TracerProvider) {
	otel.SetTracerProvider(tp)
	zap.L().Info("tracing enabled",
		zap.String("protocol", cfg.Otel.Protocol),
		zap.String("endpoint", cfg.Otel.Endpoint),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
}
