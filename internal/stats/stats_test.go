package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/repo/memory"
)

func ms(v int) *int { return &v }

func seed(t *testing.T, st *memory.Store, url string, day time.Time, up, down int) domain.MonitorID {
	t.Helper()
	ctx := context.Background()
	m := &domain.Monitor{Name: url, URL: url, UptimeCheckEnabled: true, IntervalMinutes: 5}
	if err := st.UpsertMonitor(ctx, m); err != nil {
		t.Fatalf("UpsertMonitor: %v", err)
	}
	at := day.Add(time.Hour)
	for i := 0; i < up; i++ {
		rec := &domain.HistoryRecord{MonitorID: m.ID, Status: domain.StatusUp, ResponseTimeMS: ms(100 + i*10), CheckedAt: at}
		_ = st.AppendHistory(ctx, rec)
		at = at.Add(5 * time.Minute)
	}
	for i := 0; i < down; i++ {
		rec := &domain.HistoryRecord{MonitorID: m.ID, Status: domain.StatusDown, CheckedAt: at}
		_ = st.AppendHistory(ctx, rec)
		at = at.Add(5 * time.Minute)
	}
	return m.ID
}

func TestComputeDailyUptime_Formula(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC)
	st := memory.New()
	a := NewAggregator(st, Options{}, zap.NewNop())

	cases := []struct {
		url      string
		up, down int
		want     float64
	}{
		{"https://a.example", 8, 2, 80.0},
		{"https://b.example", 0, 0, 0.0},
		{"https://c.example", 10, 0, 100.0},
		{"https://d.example", 2, 1, 66.7},
	}
	for _, c := range cases {
		id := seed(t, st, c.url, day, c.up, c.down)
		got, err := a.ComputeDailyUptime(ctx, id, "2025-08-18")
		if err != nil {
			t.Fatalf("%s: %v", c.url, err)
		}
		if got != c.want {
			t.Fatalf("%s: want %.1f, got %.1f", c.url, c.want, got)
		}
	}
}

func TestAggregateDailyMetrics_IdempotentAndWindowed(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC)
	st := memory.New()
	id := seed(t, st, "https://a.example", day, 3, 1)
	// next day must not leak into the window
	_ = st.AppendHistory(ctx, &domain.HistoryRecord{MonitorID: id, Status: domain.StatusDown, CheckedAt: day.Add(24 * time.Hour)})

	a := NewAggregator(st, Options{}, zap.NewNop())
	first, err := a.AggregateDailyMetrics(ctx, id, "2025-08-18")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := a.AggregateDailyMetrics(ctx, id, "2025-08-18")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.TotalChecks != 4 || first.FailedCount != 1 {
		t.Fatalf("unexpected counts %+v", first)
	}
	if *first.MinResponseMS != 100 || *first.MaxResponseMS != 120 || *first.AvgResponseMS != 110 {
		t.Fatalf("unexpected timings min=%d max=%d avg=%v", *first.MinResponseMS, *first.MaxResponseMS, *first.AvgResponseMS)
	}
	if first.UptimePercentage != second.UptimePercentage || first.TotalChecks != second.TotalChecks {
		t.Fatalf("re-run changed values: %+v vs %+v", first, second)
	}
	rows, _ := st.ListDaily(ctx, "2025-08-18")
	if len(rows) != 1 {
		t.Fatalf("want 1 daily row, got %d", len(rows))
	}
}

func TestAggregateDailyMetrics_InvalidInput(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	a := NewAggregator(st, Options{}, zap.NewNop())

	if _, err := a.AggregateDailyMetrics(ctx, 1, "18/08/2025"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("want ErrInvalidDate, got %v", err)
	}
	if _, err := a.AggregateDailyMetrics(ctx, 42, "2025-08-18"); !errors.Is(err, ErrUnknownMonitor) {
		t.Fatalf("want ErrUnknownMonitor, got %v", err)
	}
}

func TestRunDaily_FailedKeyDoesNotAbortSiblings(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC)
	st := memory.New()
	var ids []domain.MonitorID
	for i := 0; i < 5; i++ {
		ids = append(ids, seed(t, st, fmt.Sprintf("https://%d.example", i), day, 1, 0))
	}
	ids = append(ids, 999, ids[0])

	a := NewAggregator(st, Options{ChunkSize: 2, Retries: 3, RetryBackoff: time.Millisecond}, zap.NewNop())
	rep, err := a.RunDaily(ctx, "2025-08-18", ids)
	if !errors.Is(err, ErrUnknownMonitor) {
		t.Fatalf("want joined ErrUnknownMonitor, got %v", err)
	}
	if rep.Succeeded != 5 || rep.Failed != 1 {
		t.Fatalf("want 5/1, got %d/%d", rep.Succeeded, rep.Failed)
	}
	if len(rep.FailedIDs) != 1 || rep.FailedIDs[0] != 999 {
		t.Fatalf("want failed ids [999], got %v", rep.FailedIDs)
	}
	rows, _ := st.ListDaily(ctx, "2025-08-18")
	if len(rows) != 5 {
		t.Fatalf("want 5 rows, got %d", len(rows))
	}
}

// blockingStore holds ListHistory until release is closed.
type blockingStore struct {
	*memory.Store
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) ListHistory(ctx context.Context, id domain.MonitorID, from, to time.Time) ([]domain.HistoryRecord, error) {
	if b.calls.Add(1) == 1 {
		close(b.entered)
	}
	<-b.release
	return b.Store.ListHistory(ctx, id, from, to)
}

func TestRunDaily_DuplicateDispatchCollapses(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC)
	mem := memory.New()
	id := seed(t, mem, "https://a.example", day, 1, 0)
	bs := &blockingStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	a := NewAggregator(bs, Options{}, zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = a.RunDaily(ctx, "2025-08-18", []domain.MonitorID{id})
	}()
	<-bs.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = a.RunDaily(ctx, "2025-08-18", []domain.MonitorID{id})
	}()
	// let the second run reach the singleflight group before releasing
	time.Sleep(50 * time.Millisecond)
	close(bs.release)
	wg.Wait()

	if got := bs.calls.Load(); got != 1 {
		t.Fatalf("want 1 aggregation, got %d", got)
	}
}

func TestUpdateHourlyMetrics_SeedsThenIncrements(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := &domain.Monitor{Name: "a", URL: "https://a.example", UptimeCheckEnabled: true}
	_ = st.UpsertMonitor(ctx, m)
	a := NewAggregator(st, Options{}, zap.NewNop())
	hour := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

	// history is stored before the hourly update
	check := func(at time.Time, rt *int, up bool) {
		status := domain.StatusDown
		if up {
			status = domain.StatusUp
		}
		_ = st.AppendHistory(ctx, &domain.HistoryRecord{MonitorID: m.ID, Status: status, ResponseTimeMS: rt, CheckedAt: at})
		if err := a.UpdateHourlyMetrics(ctx, m.ID, at, rt, up); err != nil {
			t.Fatalf("UpdateHourlyMetrics: %v", err)
		}
	}
	check(hour.Add(1*time.Minute), ms(100), true)
	check(hour.Add(2*time.Minute), ms(300), true)
	check(hour.Add(3*time.Minute), nil, false)
	check(hour.Add(4*time.Minute), ms(200), true)

	row, err := st.GetHourly(ctx, m.ID, hour)
	if err != nil {
		t.Fatalf("GetHourly: %v", err)
	}
	if row.SuccessCount != 3 || row.FailureCount != 1 {
		t.Fatalf("want 3/1, got %d/%d", row.SuccessCount, row.FailureCount)
	}
	if row.UptimePercentage != 75 {
		t.Fatalf("want 75, got %v", row.UptimePercentage)
	}
	if *row.AvgResponseMS != 200 || *row.P95ResponseMS != 300 {
		t.Fatalf("unexpected timings avg=%v p95=%v", *row.AvgResponseMS, *row.P95ResponseMS)
	}

	// a new aggregator (restart) reseeds from history and agrees
	b := NewAggregator(st, Options{}, zap.NewNop())
	again, err := b.AggregateHourly(ctx, m.ID, hour.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("AggregateHourly: %v", err)
	}
	if again.SuccessCount != 3 || again.FailureCount != 1 {
		t.Fatalf("recomputed counts differ: %+v", again)
	}
}

func TestPercentile_NearestRank(t *testing.T) {
	vals := make([]int, 100)
	for i := range vals {
		vals[i] = i + 1
	}
	if got := *percentile(vals, 95); got != 95 {
		t.Fatalf("want 95, got %d", got)
	}
	if got := *percentile(vals, 99); got != 99 {
		t.Fatalf("want 99, got %d", got)
	}
	if percentile(nil, 95) != nil {
		t.Fatalf("want nil for empty sample")
	}
}
