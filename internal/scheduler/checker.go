// Package scheduler drives periodic checks, delayed confirmation re-checks
// and the background jobs of the monitoring core.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimecore/internal/confirm"
	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/metrics"
	"github.com/hamed0406/uptimecore/internal/probe"
	"github.com/hamed0406/uptimecore/internal/repo"
)

type CheckConfig struct {
	Policy  confirm.Policy
	Timeout time.Duration
	Floor   time.Duration // deployment minimum between checks of one monitor
	Workers int
}

type CheckScheduler struct {
	cfg      CheckConfig
	store    repo.Store
	prober   probe.Prober
	deferrer Deferrer
	alerter  *Alerter
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time

	locks *keyedMutex
}

func NewCheckScheduler(cfg CheckConfig, store repo.Store, prober probe.Prober, deferrer Deferrer, alerter *Alerter, m *metrics.Metrics, log *zap.Logger) *CheckScheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &CheckScheduler{
		cfg:      cfg,
		store:    store,
		prober:   prober,
		deferrer: deferrer,
		alerter:  alerter,
		metrics:  m,
		log:      log,
		now:      time.Now,
		locks:    newKeyedMutex(),
	}
}

// Tick checks every enabled monitor that is due. Only a failure to list
// monitors is returned; per-monitor errors are logged and retried on the
// next tick.
func (s *CheckScheduler) Tick(ctx context.Context) error {
	mons, err := s.store.ListEnabled(ctx)
	if err != nil {
		s.log.Warn("tick_list_error", zap.Error(err))
		return fmt.Errorf("list monitors: %w", err)
	}
	now := s.now()
	var due []domain.Monitor
	for _, m := range mons {
		if m.Due(now, s.cfg.Floor) {
			due = append(due, m)
		}
	}
	if len(due) == 0 {
		return nil
	}
	s.log.Debug("tick", zap.Int("due", len(due)), zap.Int("enabled", len(mons)))

	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup
	for _, m := range due {
		m := m
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()
			if _, err := s.CheckMonitor(ctx, m); err != nil {
				s.log.Warn("check_failed", zap.Int64("monitor_id", int64(m.ID)), zap.String("url", m.URL), zap.Error(err))
			}
		}()
	}
	wg.Wait()
	return nil
}

// CheckMonitor probes m once and processes the outcome.
func (s *CheckScheduler) CheckMonitor(ctx context.Context, m domain.Monitor) (confirm.Decision, error) {
	start := time.Now()
	out := probe.Run(ctx, s.prober, m.URL, s.cfg.Timeout, s.now)
	s.metrics.ProbeDuration.WithLabelValues(resultLabel(out.Success)).Observe(time.Since(start).Seconds())
	return s.Process(ctx, m.ID, out)
}

func resultLabel(success bool) string {
	if success {
		return "up"
	}
	return "down"
}

// Process evaluates one outcome inside the monitor's critical section. Live
// state, history and incident changes commit together; the re-check,
// notifications, rollups and broadcast follow the commit.
func (s *CheckScheduler) Process(ctx context.Context, id domain.MonitorID, o domain.Outcome) (confirm.Decision, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var (
		dec confirm.Decision
		mon domain.Monitor
		rec Recorded
	)
	err := s.store.Atomic(ctx, func(tx repo.Store) error {
		m, err := tx.LockMonitor(ctx, id)
		if err != nil {
			return err
		}
		mon = *m
		dec = confirm.Evaluate(s.cfg.Policy, id, m.Live, o)
		if dec.Stale {
			return nil
		}
		ok, err := tx.SaveLiveState(ctx, id, dec.Next)
		if err != nil {
			return fmt.Errorf("save live state: %w", err)
		}
		if !ok {
			dec.Stale = true
			return nil
		}
		if dec.Event != nil {
			rec, err = s.alerter.Record(ctx, tx, *dec.Event)
		}
		return err
	})
	if err != nil {
		return dec, err
	}

	if dec.Stale {
		s.metrics.Checks.WithLabelValues("stale").Inc()
		s.log.Info("check_stale_result",
			zap.Int64("monitor_id", int64(id)),
			zap.Time("checked_at", o.CheckedAt),
			zap.Time("last_check", mon.Live.LastCheck))
		return dec, nil
	}
	s.metrics.Checks.WithLabelValues(resultLabel(o.Success)).Inc()
	mon.Live = dec.Next

	if dec.Recheck != nil {
		s.scheduleRecheck(id, *dec.Recheck)
	}
	if dec.Event != nil {
		if dec.Event.Kind == domain.EventFailure && dec.Event.Transition() {
			s.metrics.Confirmations.WithLabelValues("confirmed").Inc()
		}
		s.alerter.Announce(ctx, mon, *dec.Event, rec)
	}
	return dec, nil
}

func (s *CheckScheduler) scheduleRecheck(id domain.MonitorID, rc confirm.Recheck) {
	if s.deferrer == nil {
		return
	}
	ok, err := s.deferrer.Defer(rc.Key, rc.Delay, func() { s.recheck(id, rc.Key) })
	switch {
	case err != nil:
		// the monitor stays pending; the next regular check moves it on
		s.log.Warn("confirmation_schedule_failed", zap.Int64("monitor_id", int64(id)), zap.Error(err))
	case !ok:
		s.metrics.Confirmations.WithLabelValues("duplicate").Inc()
		s.log.Debug("confirmation_duplicate", zap.String("key", rc.Key))
	default:
		s.metrics.Confirmations.WithLabelValues("scheduled").Inc()
		s.log.Info("confirmation_scheduled", zap.Int64("monitor_id", int64(id)), zap.String("key", rc.Key), zap.Duration("delay", rc.Delay))
	}
}

// recheck runs from the deferrer. It reloads the monitor and re-probes only
// if the failure that scheduled it is still the pending one.
func (s *CheckScheduler) recheck(id domain.MonitorID, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout+30*time.Second)
	defer cancel()

	m, err := s.store.GetMonitor(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Warn("recheck_load_failed", zap.Int64("monitor_id", int64(id)), zap.Error(err))
		return
	}
	live := m.Live
	if !m.UptimeCheckEnabled || live.State != domain.StatePendingConfirmation ||
		confirm.Key(id, live.PendingSince, live.FailureStreak) != key {
		s.metrics.Confirmations.WithLabelValues("cleared").Inc()
		s.log.Info("confirmation_superseded", zap.Int64("monitor_id", int64(id)), zap.String("key", key), zap.String("state", string(live.State)))
		return
	}
	if _, err := s.CheckMonitor(ctx, *m); err != nil {
		s.log.Warn("recheck_failed", zap.Int64("monitor_id", int64(id)), zap.Error(err))
	}
}
