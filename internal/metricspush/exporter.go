package metricspush

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/salonbook/internal/config"
	"go.uber.org/zap"
)

// Snapshot is the settlement backlog observed by the worker before a push.
type Snapshot struct {
	OutboxPending int64
	OpenCashDays  int64
}

// Exporter owns the backlog gauges and pushes them together with the
// process-wide worker metrics.
type Exporter struct {
	registry      *prometheus.Registry
	gatherer      prometheus.Gatherer
	pusher        Pusher
	log           *zap.Logger
	outboxPending prometheus.Gauge
	openCashDays  prometheus.Gauge
}

// NewExporter returns nil when pushing is disabled.
func NewExporter(cfg config.Config, pusher Pusher, log *zap.Logger) *Exporter {
	if pusher == nil {
		return nil
	}
	return newExporter(cfg, pusher, prometheus.DefaultGatherer, log)
}

func newExporter(cfg config.Config, pusher Pusher, extra prometheus.Gatherer, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	labels := prometheus.Labels{"service": cfg.AppName, "env": cfg.Environment}
	registry := prometheus.NewRegistry()

	outboxPending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "salonbook_outbox_pending_events",
		Help:        "Domain events waiting for delivery.",
		ConstLabels: labels,
	})
	openCashDays := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "salonbook_open_cash_days",
		Help:        "Branches whose register is open and not yet closed today.",
		ConstLabels: labels,
	})
	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "salonbook_build_info",
		Help:        "Build information.",
		ConstLabels: prometheus.Labels{"service": cfg.AppName, "env": cfg.Environment, "version": cfg.AppVersion},
	})
	buildInfo.Set(1)
	registry.MustRegister(outboxPending, openCashDays, buildInfo)

	gatherer := prometheus.Gatherer(registry)
	if extra != nil {
		gatherer = prometheus.Gatherers{registry, extra}
	}
	return &Exporter{
		registry:      registry,
		gatherer:      gatherer,
		pusher:        pusher,
		log:           log.Named("metricspush"),
		outboxPending: outboxPending,
		openCashDays:  openCashDays,
	}
}

// Push records snapshot and ships every gathered metric.
func (e *Exporter) Push(ctx context.Context, snapshot Snapshot) error {
	if e == nil {
		return nil
	}
	e.outboxPending.Set(float64(snapshot.OutboxPending))
	e.openCashDays.Set(float64(snapshot.OpenCashDays))
	if err := e.pusher.Push(ctx, e.gatherer); err != nil {
		return err
	}
	e.log.Debug("metrics pushed",
		zap.Int64("outbox_pending", snapshot.OutboxPending),
		zap.Int64("open_cash_days", snapshot.OpenCashDays),
	)
	return nil
}
