package observability

import (
	"strings"

	"github.com/smallbiznis/salonbook/internal/config"
)

const defaultSamplingRatio = 0.1

// Config is the slice of application config the logger, tracer and meter
// providers need.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Production  bool

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "salonbook"
	}
	ratio := cfg.Telemetry.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = defaultSamplingRatio
	}
	level := cfg.Telemetry.LogLevel
	if level == "" {
		level = "info"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		Production:           cfg.IsProduction(),
		LogLevel:             level,
		LogFormat:            cfg.Telemetry.LogFormat,
		OtelEnabled:          cfg.Telemetry.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: cfg.Telemetry.OtelProtocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug turns on error details in request logs. Production never gets them,
// even at debug level.
func (c Config) Debug() bool {
	if c.Production {
		return false
	}
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
