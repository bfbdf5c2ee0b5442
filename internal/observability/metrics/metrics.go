package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes settlement instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	paymentsApplied   metric.Int64Counter
	paymentsRefunded  metric.Int64Counter
	commissionCreated metric.Int64Counter
	cashDaysClosed    metric.Int64Counter
	outboxDelivered   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New creates the settlement instruments on the given provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "salonbook"
	}
	meter := provider.Meter(name)

	paymentsApplied, err := meter.Int64Counter("salonbook_payments_applied_total")
	if err != nil {
		return nil, err
	}
	paymentsRefunded, err := meter.Int64Counter("salonbook_payments_refunded_total")
	if err != nil {
		return nil, err
	}
	commissionCreated, err := meter.Int64Counter("salonbook_commissions_created_total")
	if err != nil {
		return nil, err
	}
	cashDaysClosed, err := meter.Int64Counter("salonbook_cash_days_closed_total")
	if err != nil {
		return nil, err
	}
	outboxDelivered, err := meter.Int64Counter("salonbook_outbox_delivered_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		paymentsApplied:   paymentsApplied,
		paymentsRefunded:  paymentsRefunded,
		commissionCreated: commissionCreated,
		cashDaysClosed:    cashDaysClosed,
		outboxDelivered:   outboxDelivered,
	}, nil
}

func (m *Metrics) RecordPaymentApplied(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.paymentsApplied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("method", strings.TrimSpace(method)),
	)...))
}

func (m *Metrics) RecordPaymentRefunded(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.paymentsRefunded.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("method", strings.TrimSpace(method)),
	)...))
}

func (m *Metrics) RecordCommissionCreated(ctx context.Context, ruleType string) {
	if m == nil {
		return
	}
	m.commissionCreated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("rule_type", strings.TrimSpace(ruleType)),
	)...))
}

func (m *Metrics) RecordCashDayClosed(ctx context.Context, classification string) {
	if m == nil {
		return
	}
	m.cashDaysClosed.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("classification", strings.TrimSpace(classification)),
	)...))
}

func (m *Metrics) RecordOutboxDelivery(ctx context.Context, topic, result string) {
	if m == nil {
		return
	}
	m.outboxDelivered.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("topic", strings.TrimSpace(topic)),
		attribute.String("result", strings.TrimSpace(result)),
	)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"method":         {},
	"rule_type":      {},
	"classification": {},
	"topic":          {},
	"result":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
