package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	WorkerJobReasonDeadlineExceeded     = "deadline_exceeded"
	WorkerJobReasonDBLockTimeout        = "db_lock_timeout"
	WorkerJobReasonSerializationFailure = "serialization_failure"
	WorkerJobReasonUniqueViolation      = "unique_violation"
	WorkerJobReasonNotFound             = "not_found"
	WorkerJobReasonUnknown              = "unknown"

	WorkerSkipReasonLockHeld = "lock_held"
)

// WorkerMetrics captures background job health.
type WorkerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	jobSkipped     *prometheus.CounterVec
	itemsProcessed *prometheus.CounterVec
	outboxBacklog  prometheus.Gauge
}

var (
	workerMetricsOnce sync.Once
	workerMetrics     *WorkerMetrics
)

// Worker returns the process-wide worker metrics registered on the default registerer.
func Worker(cfg Config) *WorkerMetrics {
	workerMetricsOnce.Do(func() {
		workerMetrics = NewWorkerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return workerMetrics
}

// NewWorkerMetrics registers worker instruments on registerer.
func NewWorkerMetrics(registerer prometheus.Registerer, cfg Config) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "salonbook_worker_job_runs_total",
		Help:        "Worker job runs by name.",
		ConstLabels: labels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "salonbook_worker_job_duration_seconds",
		Help:        "Worker job latency.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: labels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "salonbook_worker_job_timeouts_total",
		Help:        "Worker jobs that hit their deadline.",
		ConstLabels: labels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "salonbook_worker_job_errors_total",
		Help:        "Worker job errors by low-cardinality reason.",
		ConstLabels: labels,
	}, []string{"job", "reason"})
	jobSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "salonbook_worker_job_skipped_total",
		Help:        "Worker job runs skipped before doing work.",
		ConstLabels: labels,
	}, []string{"job", "reason"})
	itemsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "salonbook_worker_items_processed_total",
		Help:        "Items handled by worker jobs.",
		ConstLabels: labels,
	}, []string{"job"})
	outboxBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "salonbook_outbox_backlog",
		Help:        "Domain events waiting for delivery.",
		ConstLabels: labels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		jobSkipped,
		itemsProcessed,
		outboxBacklog,
	)

	return &WorkerMetrics{
		jobRuns:        jobRuns,
		jobDuration:    jobDuration,
		jobTimeouts:    jobTimeouts,
		jobErrors:      jobErrors,
		jobSkipped:     jobSkipped,
		itemsProcessed: itemsProcessed,
		outboxBacklog:  outboxBacklog,
	}
}

func (m *WorkerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *WorkerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *WorkerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError counts err under its classified reason.
func (m *WorkerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *WorkerMetrics) IncJobSkipped(job, reason string) {
	if m == nil {
		return
	}
	m.jobSkipped.WithLabelValues(job, reason).Inc()
}

func (m *WorkerMetrics) AddItemsProcessed(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.itemsProcessed.WithLabelValues(job).Add(float64(count))
}

func (m *WorkerMetrics) SetOutboxBacklog(count int64) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(float64(count))
}

// ClassifyJobReason maps an error to a bounded reason label.
func ClassifyJobReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WorkerJobReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return WorkerJobReasonNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return WorkerJobReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return WorkerJobReasonDBLockTimeout
		case "40001", "40P01":
			return WorkerJobReasonSerializationFailure
		case "23505":
			return WorkerJobReasonUniqueViolation
		}
	}
	return WorkerJobReasonUnknown
}
