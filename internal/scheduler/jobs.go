package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/metrics"
	"github.com/hamed0406/uptimecore/internal/repo"
	"github.com/hamed0406/uptimecore/internal/stats"
)

type CertChecker interface {
	Check(ctx context.Context, url string) domain.CertificateState
}

// CertJob refreshes certificate status for monitors that ask for it.
type CertJob struct {
	store   repo.MonitorStore
	checker CertChecker
	workers int
	log     *zap.Logger
}

func NewCertJob(store repo.MonitorStore, checker CertChecker, workers int, log *zap.Logger) *CertJob {
	if workers < 1 {
		workers = 1
	}
	return &CertJob{store: store, checker: checker, workers: workers, log: log}
}

func (j *CertJob) Run(ctx context.Context) error {
	mons, err := j.store.ListMonitors(ctx)
	if err != nil {
		return fmt.Errorf("list monitors: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.workers)
	for _, m := range mons {
		m := m
		if !m.CertCheckEnabled {
			continue
		}
		g.Go(func() error {
			st := j.checker.Check(gctx, m.URL)
			if err := j.store.SaveCertificate(gctx, m.ID, st); err != nil {
				return fmt.Errorf("monitor %d: %w", m.ID, err)
			}
			j.log.Info("certificate_checked",
				zap.Int64("monitor_id", int64(m.ID)),
				zap.String("status", string(st.Status)),
				zap.String("reason", st.Reason))
			return nil
		})
	}
	return g.Wait()
}

// DailyJob aggregates the previous UTC day for every enabled monitor.
type DailyJob struct {
	aggr    *stats.Aggregator
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewDailyJob(aggr *stats.Aggregator, m *metrics.Metrics, log *zap.Logger) *DailyJob {
	if m == nil {
		m = metrics.Nop()
	}
	return &DailyJob{aggr: aggr, metrics: m, log: log, now: time.Now}
}

func (j *DailyJob) Run(ctx context.Context) error {
	date := j.now().UTC().AddDate(0, 0, -1).Format(domain.DateLayout)
	rep, err := j.aggr.RunDaily(ctx, date, nil)
	j.metrics.Aggregations.WithLabelValues("ok").Add(float64(rep.Succeeded))
	j.metrics.Aggregations.WithLabelValues("failed").Add(float64(rep.Failed))
	return err
}

type Jobs struct {
	Tick      time.Duration
	Checks    *CheckScheduler
	DailyCron string
	Daily     *DailyJob
	CertCron  string
	Certs     *CertJob
}

// RegisterJobs adds the recurring jobs to cron. Each job runs in singleton
// mode so a slow run is never overlapped by the next one.
func RegisterJobs(ctx context.Context, cron gocron.Scheduler, j Jobs, log *zap.Logger) error {
	run := func(name string, fn func(context.Context) error) func() {
		return func() {
			if err := fn(ctx); err != nil {
				log.Warn("job_failed", zap.String("job", name), zap.Error(err))
			}
		}
	}

	if j.Checks != nil {
		if _, err := cron.NewJob(
			gocron.DurationJob(j.Tick),
			gocron.NewTask(run("check_tick", j.Checks.Tick)),
			gocron.WithName("check_tick"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		); err != nil {
			return fmt.Errorf("check tick job: %w", err)
		}
	}
	if j.Daily != nil && j.DailyCron != "" {
		if _, err := cron.NewJob(
			gocron.CronJob(j.DailyCron, false),
			gocron.NewTask(run("daily_aggregation", j.Daily.Run)),
			gocron.WithName("daily_aggregation"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return fmt.Errorf("daily aggregation job: %w", err)
		}
	}
	if j.Certs != nil && j.CertCron != "" {
		if _, err := cron.NewJob(
			gocron.CronJob(j.CertCron, false),
			gocron.NewTask(run("certificate_check", j.Certs.Run)),
			gocron.WithName("certificate_check"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return fmt.Errorf("certificate job: %w", err)
		}
	}
	return nil
}
