// Package stats rolls raw check history into hourly and daily rollups.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/repo"
)

var (
	ErrInvalidDate    = errors.New("invalid date")
	ErrUnknownMonitor = errors.New("unknown monitor")
)

// Store is the part of repo.Store the aggregator needs.
type Store interface {
	GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	ListEnabled(ctx context.Context) ([]domain.Monitor, error)
	repo.HistoryStore
	repo.StatsStore
}

type Options struct {
	ChunkSize    int
	Retries      int
	RetryBackoff time.Duration
	// SampleSize caps the response times kept per hourly bucket.
	SampleSize int
}

type Aggregator struct {
	store Store
	opt   Options
	log   *zap.Logger

	mu      sync.Mutex
	buckets map[domain.MonitorID]*bucket

	flight singleflight.Group
}

func NewAggregator(store Store, opt Options, log *zap.Logger) *Aggregator {
	if opt.ChunkSize <= 0 {
		opt.ChunkSize = 10
	}
	if opt.Retries < 0 {
		opt.Retries = 0
	}
	if opt.SampleSize <= 0 {
		opt.SampleSize = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		store:   store,
		opt:     opt,
		log:     log,
		buckets: make(map[domain.MonitorID]*bucket),
	}
}

// Uptime is success/total as a percentage with one decimal, 0 when total is 0.
func Uptime(success, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round(float64(success)/float64(total)*100, 1)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// percentile uses the nearest-rank method on a sorted slice.
func percentile(sorted []int, p float64) *int {
	if len(sorted) == 0 {
		return nil
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	v := sorted[rank-1]
	return &v
}

func mean(vals []int) *float64 {
	if len(vals) == 0 {
		return nil
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	avg := round(float64(sum)/float64(len(vals)), 2)
	return &avg
}

// ---- hourly ----

type bucket struct {
	hour    time.Time
	success int
	failure int
	seen    int // response times offered to the sample
	sample  []int
}

func (b *bucket) add(rt *int, success bool, capacity int) {
	if success {
		b.success++
	} else {
		b.failure++
	}
	if rt == nil {
		return
	}
	b.seen++
	if len(b.sample) < capacity {
		b.sample = append(b.sample, *rt)
		return
	}
	// reservoir sampling keeps the sample uniform once it is full
	if j := rand.Intn(b.seen); j < capacity {
		b.sample[j] = *rt
	}
}

func (b *bucket) row(id domain.MonitorID) domain.PerformanceHourly {
	sorted := append([]int(nil), b.sample...)
	sort.Ints(sorted)
	return domain.PerformanceHourly{
		MonitorID:        id,
		Hour:             b.hour,
		SuccessCount:     b.success,
		FailureCount:     b.failure,
		AvgResponseMS:    mean(sorted),
		P95ResponseMS:    percentile(sorted, 95),
		P99ResponseMS:    percentile(sorted, 99),
		UptimePercentage: Uptime(b.success, b.success+b.failure),
	}
}

// UpdateHourlyMetrics folds one propagated check into the current-hour
// bucket of the monitor and upserts the row. The history record for the
// check must already be stored: a bucket that is not in memory yet (first
// check of the hour, or after a restart) is rebuilt from history, which then
// already counts this check.
func (a *Aggregator) UpdateHourlyMetrics(ctx context.Context, id domain.MonitorID, at time.Time, responseTimeMS *int, success bool) error {
	hour := at.UTC().Truncate(time.Hour)

	a.mu.Lock()
	b, ok := a.buckets[id]
	if ok && b.hour.Equal(hour) {
		b.add(responseTimeMS, success, a.opt.SampleSize)
		row := b.row(id)
		a.mu.Unlock()
		return a.store.UpsertHourly(ctx, &row)
	}
	a.mu.Unlock()

	b, err := a.seedBucket(ctx, id, hour)
	if err != nil {
		return err
	}
	a.mu.Lock()
	if cur, ok := a.buckets[id]; !ok || !cur.hour.After(hour) {
		a.buckets[id] = b
	}
	row := b.row(id)
	a.mu.Unlock()
	return a.store.UpsertHourly(ctx, &row)
}

func (a *Aggregator) seedBucket(ctx context.Context, id domain.MonitorID, hour time.Time) (*bucket, error) {
	recs, err := a.store.ListHistory(ctx, id, hour, hour.Add(time.Hour))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	b := &bucket{hour: hour}
	for _, r := range recs {
		b.add(r.ResponseTimeMS, r.Status == domain.StatusUp, a.opt.SampleSize)
	}
	return b, nil
}

// AggregateHourly recomputes one hourly row from history and upserts it.
func (a *Aggregator) AggregateHourly(ctx context.Context, id domain.MonitorID, hour time.Time) (*domain.PerformanceHourly, error) {
	b, err := a.seedBucket(ctx, id, hour.UTC().Truncate(time.Hour))
	if err != nil {
		return nil, err
	}
	row := b.row(id)
	if err := a.store.UpsertHourly(ctx, &row); err != nil {
		return nil, fmt.Errorf("upsert hourly: %w", err)
	}
	return &row, nil
}

// ---- daily ----

// ParseDate validates a YYYY-MM-DD key and returns the start of that UTC day.
func ParseDate(date string) (time.Time, error) {
	day, err := time.ParseInLocation(domain.DateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, date, err)
	}
	return day, nil
}

// Daily computes the rollup for one monitor-day from its history.
func Daily(id domain.MonitorID, date string, recs []domain.HistoryRecord) domain.UptimeDaily {
	d := domain.UptimeDaily{MonitorID: id, Date: date, TotalChecks: len(recs)}
	var times []int
	for _, r := range recs {
		if r.Status == domain.StatusUp {
			d.SuccessCount++
		} else {
			d.FailedCount++
		}
		if r.ResponseTimeMS != nil {
			times = append(times, *r.ResponseTimeMS)
		}
	}
	d.UptimePercentage = Uptime(d.SuccessCount, d.TotalChecks)
	d.AvgResponseMS = mean(times)
	if len(times) > 0 {
		lo, hi := times[0], times[0]
		for _, v := range times[1:] {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		d.MinResponseMS, d.MaxResponseMS = &lo, &hi
	}
	return d
}

// AggregateDailyMetrics recomputes and upserts the (monitor, date) row. It
// is a pure function of stored history and safe to re-run.
func (a *Aggregator) AggregateDailyMetrics(ctx context.Context, id domain.MonitorID, date string) (*domain.UptimeDaily, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	if _, err := a.store.GetMonitor(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w %d", ErrUnknownMonitor, id)
		}
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	recs, err := a.store.ListHistory(ctx, id, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	row := Daily(id, date, recs)
	if err := a.store.UpsertDaily(ctx, &row); err != nil {
		return nil, fmt.Errorf("upsert daily: %w", err)
	}
	return &row, nil
}

// ComputeDailyUptime refreshes the daily row and returns its uptime.
func (a *Aggregator) ComputeDailyUptime(ctx context.Context, id domain.MonitorID, date string) (float64, error) {
	row, err := a.AggregateDailyMetrics(ctx, id, date)
	if err != nil {
		return 0, err
	}
	return row.UptimePercentage, nil
}
