//go:build integration

package postgres

// go test -tags=integration ./internal/repo/postgres -count=1

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/repo"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL empty")
	}
	s, err := New(context.Background(), dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedMonitor(t *testing.T, s *Store) *domain.Monitor {
	t.Helper()
	m := &domain.Monitor{
		Name:               "pg-test",
		URL:                fmt.Sprintf("https://pg-%d.example.com", time.Now().UnixNano()),
		UptimeCheckEnabled: true,
		IntervalMinutes:    1,
		Visibility:         domain.VisibilityPublic,
	}
	if err := s.UpsertMonitor(context.Background(), m); err != nil {
		t.Fatalf("UpsertMonitor: %v", err)
	}
	return m
}

func TestPostgres_LiveStateIsConditional(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	m := seedMonitor(t, s)

	now := time.Now().UTC().Truncate(time.Second)
	live := domain.LiveState{Status: domain.StatusDown, State: domain.StateDown, FailureStreak: 2, LastCheck: now}
	if ok, err := s.SaveLiveState(ctx, m.ID, live); err != nil || !ok {
		t.Fatalf("SaveLiveState: ok=%v err=%v", ok, err)
	}
	if ok, err := s.SaveLiveState(ctx, m.ID, domain.LiveState{LastCheck: now.Add(-time.Second)}); err != nil || ok {
		t.Fatalf("stale write should be refused: ok=%v err=%v", ok, err)
	}
	got, err := s.GetMonitor(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if got.Live.State != domain.StateDown || got.Live.FailureStreak != 2 {
		t.Fatalf("unexpected live state %+v", got.Live)
	}
	if _, err := s.SaveLiveState(ctx, 0, live); err != repo.ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPostgres_OneOpenIncident(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	m := seedMonitor(t, s)
	start := time.Now().UTC().Truncate(time.Second)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.OpenIncident(ctx, &domain.Incident{MonitorID: m.ID, Type: domain.IncidentDown, StartedAt: start})
			if err != nil {
				t.Errorf("OpenIncident: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Fatalf("want 1 created incident, got %d", created)
	}

	closed, err := s.CloseOpenIncident(ctx, m.ID, start.Add(150*time.Second))
	if err != nil || closed == nil {
		t.Fatalf("CloseOpenIncident: %+v err=%v", closed, err)
	}
	if closed.DurationMinutes == nil || *closed.DurationMinutes != 2 {
		t.Fatalf("want duration 2, got %v", closed.DurationMinutes)
	}
	again, err := s.CloseOpenIncident(ctx, m.ID, start.Add(time.Hour))
	if err != nil || again != nil {
		t.Fatalf("second close should be a no-op: %+v err=%v", again, err)
	}
}

func TestPostgres_DailyUpsertAndAtomicRollback(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	m := seedMonitor(t, s)

	d := &domain.UptimeDaily{MonitorID: m.ID, Date: "2025-08-18", TotalChecks: 5, SuccessCount: 4, FailedCount: 1, UptimePercentage: 80}
	for i := 0; i < 2; i++ {
		if err := s.UpsertDaily(ctx, d); err != nil {
			t.Fatalf("UpsertDaily: %v", err)
		}
	}
	got, err := s.GetDaily(ctx, m.ID, "2025-08-18")
	if err != nil {
		t.Fatalf("GetDaily: %v", err)
	}
	if got.Date != "2025-08-18" || got.UptimePercentage != 80 {
		t.Fatalf("unexpected row %+v", got)
	}

	boom := fmt.Errorf("boom")
	err = s.Atomic(ctx, func(tx repo.Store) error {
		if err := tx.AppendHistory(ctx, &domain.HistoryRecord{MonitorID: m.ID, Status: domain.StatusUp, CheckedAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("want boom, got %v", err)
	}
	recs, err := s.ListHistory(ctx, m.ID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("rolled back history should be gone, got %d rows", len(recs))
	}
}
