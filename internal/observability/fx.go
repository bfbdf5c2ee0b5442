package observability

import (
	"time"

	"github.com/smallbiznis/salonbook/internal/observability/logger"
	"github.com/smallbiznis/salonbook/internal/observability/metrics"
	"github.com/smallbiznis/salonbook/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		splitConfig,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.Worker,
	),
	fx.Invoke(announce),
)

// componentConfigs fans the observability config out to each provider.
type componentConfigs struct {
	fx.Out

	Logger  logger.Config
	Tracing tracing.Config
	Metrics metrics.Config
}

func splitConfig(cfg Config) componentConfigs {
	return componentConfigs{
		Logger: logger.Config{
			ServiceName:         cfg.ServiceName,
			Environment:         cfg.Environment,
			Version:             cfg.Version,
			Level:               cfg.LogLevel,
			Format:              cfg.LogFormat,
			SamplingInitial:     100,
			SamplingThereafter:  100,
			SamplingWindow:      time.Second,
			IncludeCaller:       true,
			IncludeStackOnError: cfg.Debug(),
		},
		Tracing: tracing.Config{
			Enabled:          cfg.OtelEnabled,
			ServiceName:      cfg.ServiceName,
			ServiceVersion:   cfg.Version,
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			SamplingRatio:    cfg.OtelSamplingRatio,
		},
		Metrics: metrics.Config{
			Enabled:          cfg.OtelEnabled,
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			ServiceName:      cfg.ServiceName,
			Environment:      cfg.Environment,
		},
	}
}

// announce forces the tracer provider to be built and logs what telemetry is on.
func announce(cfg Config, _ *sdktrace.TracerProvider, log *zap.Logger) {
	log.Info("observability configured",
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Environment),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("otel_enabled", cfg.OtelEnabled),
		zap.String("otel_protocol", cfg.OtelExporterProtocol),
		zap.Float64("sampling_ratio", cfg.OtelSamplingRatio),
	)
}
