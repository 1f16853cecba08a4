package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/repo"
)

func TestMemoryStore_UpsertMonitorByURL(t *testing.T) {
	ctx := context.Background()
	s := New()

	m := &domain.Monitor{Name: "a", URL: "https://example.com", UptimeCheckEnabled: true, IntervalMinutes: 1}
	if err := s.UpsertMonitor(ctx, m); err != nil {
		t.Fatalf("UpsertMonitor: %v", err)
	}
	if m.ID == 0 {
		t.Fatalf("expected monitor ID to be set")
	}

	now := time.Now().UTC()
	if ok, err := s.SaveLiveState(ctx, m.ID, domain.LiveState{Status: domain.StatusUp, State: domain.StateHealthy, LastCheck: now}); err != nil || !ok {
		t.Fatalf("SaveLiveState: ok=%v err=%v", ok, err)
	}

	again := &domain.Monitor{Name: "renamed", URL: "https://example.com", UptimeCheckEnabled: true}
	if err := s.UpsertMonitor(ctx, again); err != nil {
		t.Fatalf("UpsertMonitor again: %v", err)
	}
	if again.ID != m.ID {
		t.Fatalf("want same id %d, got %d", m.ID, again.ID)
	}
	got, err := s.GetMonitor(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if got.Name != "renamed" || got.Live.Status != domain.StatusUp {
		t.Fatalf("update must keep live state: %+v", got)
	}
}

func TestMemoryStore_SaveLiveStateRejectsStale(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := &domain.Monitor{URL: "https://example.com"}
	_ = s.UpsertMonitor(ctx, m)

	now := time.Now().UTC()
	if ok, _ := s.SaveLiveState(ctx, m.ID, domain.LiveState{LastCheck: now}); !ok {
		t.Fatalf("want first write accepted")
	}
	if ok, _ := s.SaveLiveState(ctx, m.ID, domain.LiveState{LastCheck: now.Add(-time.Second)}); ok {
		t.Fatalf("want stale write rejected")
	}
}

func TestMemoryStore_ConcurrentOpenIncidentCreatesOne(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	created := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.OpenIncident(ctx, &domain.Incident{MonitorID: 1, Type: domain.IncidentDown, StartedAt: time.Now()})
			if err != nil {
				t.Errorf("OpenIncident: %v", err)
			}
			created <- ok
		}()
	}
	wg.Wait()
	close(created)

	n := 0
	for ok := range created {
		if ok {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("want exactly one created, got %d", n)
	}
}

func TestMemoryStore_CloseOpenIncidentComputesDuration(t *testing.T) {
	ctx := context.Background()
	s := New()
	t0 := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	_, _ = s.OpenIncident(ctx, &domain.Incident{MonitorID: 1, StartedAt: t0})

	inc, err := s.CloseOpenIncident(ctx, 1, t0.Add(17*time.Minute+20*time.Second))
	if err != nil || inc == nil {
		t.Fatalf("close: %v %v", inc, err)
	}
	if *inc.DurationMinutes != 17 {
		t.Fatalf("want 17 minutes, got %d", *inc.DurationMinutes)
	}
	if again, _ := s.CloseOpenIncident(ctx, 1, t0.Add(time.Hour)); again != nil {
		t.Fatalf("second close must be a no-op")
	}
}

func TestMemoryStore_ActiveSubscribers(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := &domain.Monitor{URL: "https://example.com"}
	_ = s.UpsertMonitor(ctx, m)

	alice, _ := s.CreateUser(ctx, "alice")
	bob, _ := s.CreateUser(ctx, "bob")
	_ = s.AddChannel(ctx, &domain.NotificationChannel{UserID: alice, Type: domain.ChannelEmail, Destination: "a@x", Enabled: true})
	_ = s.AddChannel(ctx, &domain.NotificationChannel{UserID: bob, Type: domain.ChannelSlack, Destination: "https://hooks", Enabled: true})
	_ = s.Subscribe(ctx, m.ID, alice, true)
	_ = s.Subscribe(ctx, m.ID, bob, false)

	subs, err := s.ActiveSubscribers(ctx, m.ID)
	if err != nil {
		t.Fatalf("ActiveSubscribers: %v", err)
	}
	if len(subs) != 1 || subs[0].UserID != alice || len(subs[0].Channels) != 1 {
		t.Fatalf("unexpected subscribers %+v", subs)
	}
}

func TestMemoryStore_AtomicRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := &domain.Monitor{URL: "https://example.com", UptimeCheckEnabled: true}
	_ = s.UpsertMonitor(ctx, m)

	base := time.Now().UTC().Add(-time.Minute)
	if ok, _ := s.SaveLiveState(ctx, m.ID, domain.LiveState{Status: domain.StatusUp, State: domain.StateHealthy, LastCheck: base}); !ok {
		t.Fatalf("want initial live state saved")
	}
	day := base.Format("2006-01-02")
	_ = s.UpsertDaily(ctx, &domain.UptimeDaily{MonitorID: m.ID, Date: day, TotalChecks: 10})

	boom := errors.New("boom")
	now := time.Now().UTC()
	err := s.Atomic(ctx, func(tx repo.Store) error {
		if ok, err := tx.SaveLiveState(ctx, m.ID, domain.LiveState{Status: domain.StatusDown, State: domain.StateDown, FailureStreak: 3, LastCheck: now}); err != nil || !ok {
			t.Fatalf("SaveLiveState in tx: ok=%v err=%v", ok, err)
		}
		if err := tx.AppendHistory(ctx, &domain.HistoryRecord{MonitorID: m.ID, Status: domain.StatusDown, CheckedAt: now}); err != nil {
			t.Fatalf("AppendHistory in tx: %v", err)
		}
		if created, err := tx.OpenIncident(ctx, &domain.Incident{MonitorID: m.ID, Type: domain.IncidentDown, StartedAt: now}); err != nil || !created {
			t.Fatalf("OpenIncident in tx: created=%v err=%v", created, err)
		}
		if err := tx.UpsertDaily(ctx, &domain.UptimeDaily{MonitorID: m.ID, Date: day, TotalChecks: 99}); err != nil {
			t.Fatalf("UpsertDaily in tx: %v", err)
		}
		// nested Atomic joins the outer transaction
		return tx.Atomic(ctx, func(inner repo.Store) error {
			_ = inner.UpsertMonitor(ctx, &domain.Monitor{URL: "https://other.example.com"})
			return boom
		})
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	got, _ := s.GetMonitor(ctx, m.ID)
	if got.Live.Status != domain.StatusUp || got.Live.FailureStreak != 0 || !got.Live.LastCheck.Equal(base) {
		t.Fatalf("want live state restored, got %+v", got.Live)
	}
	if recs, _ := s.ListHistory(ctx, m.ID, base.Add(-time.Hour), now.Add(time.Hour)); len(recs) != 0 {
		t.Fatalf("want no history, got %d", len(recs))
	}
	if open, _ := s.GetOpenIncident(ctx, m.ID); open != nil {
		t.Fatalf("want no open incident, got %+v", open)
	}
	if d, _ := s.GetDaily(ctx, m.ID, day); d == nil || d.TotalChecks != 10 {
		t.Fatalf("want daily row restored, got %+v", d)
	}
	if mons, _ := s.ListMonitors(ctx); len(mons) != 1 {
		t.Fatalf("want 1 monitor, got %d", len(mons))
	}
}

func TestMemoryStore_AtomicKeepsWritesOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := &domain.Monitor{URL: "https://example.com"}
	_ = s.UpsertMonitor(ctx, m)

	now := time.Now().UTC()
	err := s.Atomic(ctx, func(tx repo.Store) error {
		_, err := tx.OpenIncident(ctx, &domain.Incident{MonitorID: m.ID, Type: domain.IncidentDown, StartedAt: now})
		return err
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}
	if open, _ := s.GetOpenIncident(ctx, m.ID); open == nil {
		t.Fatalf("want open incident after commit")
	}
}
