package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	cron "github.com/robfig/cron/v3"
	cashdomain "github.com/smallbiznis/salonbook/internal/cashregister/domain"
	"github.com/smallbiznis/salonbook/internal/clock"
	commissiondomain "github.com/smallbiznis/salonbook/internal/commission/domain"
	"github.com/smallbiznis/salonbook/internal/events"
	"github.com/smallbiznis/salonbook/internal/metricspush"
	obscontext "github.com/smallbiznis/salonbook/internal/observability/context"
	obslogger "github.com/smallbiznis/salonbook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/salonbook/internal/observability/metrics"
	"github.com/smallbiznis/salonbook/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobDispatchOutbox   = "dispatch_outbox"
	JobCommissionSweep  = "commission_sweep"
	JobPushMetrics      = "push_metrics"
	defaultStopDeadline = 10 * time.Second
)

var ErrInvalidConfig = errors.New("worker: outbox and commission service are required")

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	Config        Config
	Outbox        *events.Outbox
	CommissionSvc commissiondomain.Service
	CashSvc       cashdomain.Service        `optional:"true"`
	Exporter      *metricspush.Exporter     `optional:"true"`
	Locker        JobLocker                 `optional:"true"`
	Metrics       *obsmetrics.WorkerMetrics `optional:"true"`
}

// Job is one scheduled unit of work. Run reports how many items it handled.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) (int, error)
}

type Worker struct {
	log           *zap.Logger
	clock         clock.Clock
	cfg           Config
	outbox        *events.Outbox
	commissionSvc commissiondomain.Service
	cashSvc       cashdomain.Service
	exporter      *metricspush.Exporter
	locker        JobLocker
	metrics       *obsmetrics.WorkerMetrics

	cron   *cron.Cron
	cancel context.CancelFunc
}

func New(p Params) (*Worker, error) {
	if p.Outbox == nil || p.CommissionSvc == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Worker{
		log:           p.Log.Named("worker").With(zap.String("component", "worker")),
		clock:         c,
		cfg:           p.Config.withDefaults(),
		outbox:        p.Outbox,
		commissionSvc: p.CommissionSvc,
		cashSvc:       p.CashSvc,
		exporter:      p.Exporter,
		locker:        p.Locker,
		metrics:       p.Metrics,
	}, nil
}

// Jobs lists the scheduled jobs. Metrics pushing is only scheduled when an
// exporter is configured.
func (w *Worker) Jobs() []Job {
	jobs := []Job{
		{Name: JobDispatchOutbox, Schedule: w.cfg.DispatchSchedule, Run: w.DispatchOutbox},
		{Name: JobCommissionSweep, Schedule: w.cfg.SweepSchedule, Run: w.SweepCommissions},
	}
	if w.exporter != nil {
		jobs = append(jobs, Job{Name: JobPushMetrics, Schedule: w.cfg.PushSchedule, Run: w.PushMetrics})
	}
	return jobs
}

// Start registers every job on a cron scheduler. Overlapping runs of the
// same job are skipped.
func (w *Worker) Start() error {
	if w.cron != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{log: w.log}
	scheduler := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	for _, job := range w.Jobs() {
		job := job
		if _, err := scheduler.AddFunc(job.Schedule, func() {
			_ = w.runJob(ctx, job)
		}); err != nil {
			cancel()
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
		w.log.Info("job scheduled", zap.String("job", job.Name), zap.String("schedule", job.Schedule))
	}

	w.cron = scheduler
	w.cancel = cancel
	scheduler.Start()
	return nil
}

// Stop cancels running jobs and waits for them up to the context deadline.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cron == nil {
		return nil
	}
	w.cancel()
	done := w.cron.Stop()
	w.cron = nil

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultStopDeadline)
		defer cancel()
	}
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs every job immediately, in order.
func (w *Worker) RunOnce(ctx context.Context) error {
	var err error
	for _, job := range w.Jobs() {
		err = errors.Join(err, w.runJob(ctx, job))
	}
	return err
}

func (w *Worker) runJob(parent context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(parent, w.cfg.JobTimeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, "system", "worker")
	ctx, _ = correlation.EnsureCorrelationID(ctx)
	log := obslogger.WithContext(ctx, w.log).With(zap.String("job", job.Name))

	if w.locker != nil {
		key := w.cfg.LockPrefix + job.Name
		token, ok, err := w.locker.TryLock(ctx, key, w.cfg.LockTTL)
		if err != nil {
			w.metrics.IncJobError(job.Name, err)
			log.Warn("job lock failed", zap.Error(err))
			return fmt.Errorf("%s: %w", job.Name, err)
		}
		if !ok {
			w.metrics.IncJobSkipped(job.Name, obsmetrics.WorkerSkipReasonLockHeld)
			log.Debug("job skipped, lock held elsewhere")
			return nil
		}
		defer func() {
			releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer releaseCancel()
			if err := w.locker.Release(releaseCtx, key, token); err != nil {
				log.Warn("job lock release failed", zap.Error(err))
			}
		}()
	}

	start := w.clock.Now()
	w.metrics.IncJobRun(job.Name)
	processed, err := job.Run(ctx)
	elapsed := w.clock.Now().Sub(start)
	w.metrics.ObserveJobDuration(job.Name, elapsed)
	w.metrics.AddItemsProcessed(job.Name, processed)

	if err == nil {
		if processed > 0 {
			log.Info("job finished", zap.Int("processed", processed), zap.Duration("elapsed", elapsed))
		}
		return nil
	}

	w.metrics.IncJobError(job.Name, err)
	// A deadline is a soft failure; the next tick picks up the rest.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		w.metrics.IncJobTimeout(job.Name)
		log.Warn("job timed out",
			zap.Duration("timeout", w.cfg.JobTimeout),
			zap.Int("processed", processed),
			zap.Error(err),
		)
		return nil
	}
	log.Error("job failed",
		zap.Int("processed", processed),
		zap.String("reason", obsmetrics.ClassifyJobReason(err)),
		zap.Error(err),
	)
	return fmt.Errorf("%s: %w", job.Name, err)
}

func (w *Worker) DispatchOutbox(ctx context.Context) (int, error) {
	delivered, err := w.outbox.ProcessPending(ctx, w.cfg.BatchSize)
	if err != nil {
		return delivered, err
	}
	pending, err := w.outbox.PendingCount(ctx)
	if err != nil {
		return delivered, err
	}
	w.metrics.SetOutboxBacklog(pending)
	return delivered, nil
}

func (w *Worker) SweepCommissions(ctx context.Context) (int, error) {
	return w.commissionSvc.SweepMissing(ctx, w.cfg.BatchSize)
}

func (w *Worker) PushMetrics(ctx context.Context) (int, error) {
	if w.exporter == nil {
		return 0, nil
	}
	pending, err := w.outbox.PendingCount(ctx)
	if err != nil {
		return 0, err
	}
	snapshot := metricspush.Snapshot{OutboxPending: pending}
	if w.cashSvc != nil {
		open, err := w.cashSvc.CountOpenDays(ctx)
		if err != nil {
			return 0, err
		}
		snapshot.OpenCashDays = open
	}
	w.metrics.SetOutboxBacklog(pending)
	if err := w.exporter.Push(ctx, snapshot); err != nil {
		return 0, err
	}
	return 1, nil
}

// cronLogger routes cron's internal logging through zap.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, zap.Any("details", keysAndValues), zap.Error(err))
}
