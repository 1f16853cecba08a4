package stats

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/uptimecore/internal/domain"
)

// Report summarises one RunDaily pass.
type Report struct {
	Date      string
	Succeeded int
	Failed    int
	// FailedIDs lists the failed monitors in ascending order.
	FailedIDs []domain.MonitorID
}

// RunDaily aggregates date for ids, or for every enabled monitor when ids is
// empty. Keys run in chunks of ChunkSize; a failing key never aborts its
// siblings, and all failures come back joined.
func (a *Aggregator) RunDaily(ctx context.Context, date string, ids []domain.MonitorID) (Report, error) {
	rep := Report{Date: date}
	if _, err := ParseDate(date); err != nil {
		return rep, err
	}
	if len(ids) == 0 {
		mons, err := a.store.ListEnabled(ctx)
		if err != nil {
			return rep, fmt.Errorf("list monitors: %w", err)
		}
		for _, m := range mons {
			ids = append(ids, m.ID)
		}
	}
	ids = dedupe(ids)

	var (
		mu   sync.Mutex
		errs error
	)
	for start := 0; start < len(ids); start += a.opt.ChunkSize {
		if err := ctx.Err(); err != nil {
			return rep, multierr.Append(errs, err)
		}
		end := min(start+a.opt.ChunkSize, len(ids))

		var g errgroup.Group
		for _, id := range ids[start:end] {
			id := id
			g.Go(func() error {
				err := a.runKey(ctx, id, date)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					rep.Failed++
					rep.FailedIDs = append(rep.FailedIDs, id)
					errs = multierr.Append(errs, fmt.Errorf("monitor %d: %w", id, err))
					return nil
				}
				rep.Succeeded++
				return nil
			})
		}
		_ = g.Wait()
	}

	slices.Sort(rep.FailedIDs)
	a.log.Info("daily_aggregation_done",
		zap.String("date", date),
		zap.Int("succeeded", rep.Succeeded),
		zap.Int("failed", rep.Failed))
	return rep, errs
}

// runKey collapses concurrent runs of the same (monitor, date) into one.
func (a *Aggregator) runKey(ctx context.Context, id domain.MonitorID, date string) error {
	key := fmt.Sprintf("monitor:%d:%s", id, date)
	_, err, shared := a.flight.Do(key, func() (any, error) {
		return nil, a.retry(ctx, id, date)
	})
	if shared {
		a.log.Debug("daily_aggregation_collapsed", zap.String("key", key))
	}
	return err
}

func (a *Aggregator) retry(ctx context.Context, id domain.MonitorID, date string) error {
	var err error
	for attempt := 0; attempt <= a.opt.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return multierr.Append(err, ctx.Err())
			case <-time.After(a.opt.RetryBackoff):
			}
		}
		if _, err = a.AggregateDailyMetrics(ctx, id, date); err == nil {
			return nil
		}
		if Permanent(err) {
			return err
		}
		a.log.Warn("daily_aggregation_retry",
			zap.Int64("monitor_id", int64(id)),
			zap.String("date", date),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return err
}

// Permanent reports errors that a retry cannot fix.
func Permanent(err error) bool {
	return errors.Is(err, ErrInvalidDate) || errors.Is(err, ErrUnknownMonitor)
}

func dedupe(ids []domain.MonitorID) []domain.MonitorID {
	seen := make(map[domain.MonitorID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
