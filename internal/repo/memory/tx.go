package memory

import (
	"context"
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/repo"
)

// txStore is the view handed to Atomic callbacks. Every write made through it
// records an undo step; rollback replays them newest first.
type txStore struct {
	*Store
	undo []func()
}

var _ repo.Store = (*txStore)(nil)

// Atomic on a transactional view joins the running transaction.
func (t *txStore) Atomic(ctx context.Context, fn func(tx repo.Store) error) error {
	return fn(t)
}

func (t *txStore) rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// onUndo registers fn; it runs with mu held.
func (t *txStore) onUndo(fn func()) { t.undo = append(t.undo, fn) }

func (t *txStore) monitor(id domain.MonitorID) (domain.Monitor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	mon, ok := t.monitors[id]
	if !ok {
		return domain.Monitor{}, false
	}
	return cloneMonitor(mon), true
}

func (t *txStore) SaveLiveState(ctx context.Context, id domain.MonitorID, live domain.LiveState) (bool, error) {
	prev, _ := t.monitor(id)
	ok, err := t.Store.SaveLiveState(ctx, id, live)
	if ok {
		t.onUndo(func() {
			if mon := t.monitors[id]; mon != nil {
				mon.Live = prev.Live
			}
		})
	}
	return ok, err
}

func (t *txStore) SaveCertificate(ctx context.Context, id domain.MonitorID, cert domain.CertificateState) error {
	prev, _ := t.monitor(id)
	if err := t.Store.SaveCertificate(ctx, id, cert); err != nil {
		return err
	}
	t.onUndo(func() {
		if mon := t.monitors[id]; mon != nil {
			mon.Certificate = prev.Certificate
		}
	})
	return nil
}

func (t *txStore) UpsertMonitor(ctx context.Context, in *domain.Monitor) error {
	var (
		prev    domain.Monitor
		existed bool
	)
	t.mu.RLock()
	for _, mon := range t.monitors {
		if mon.URL == in.URL {
			prev, existed = cloneMonitor(mon), true
			break
		}
	}
	t.mu.RUnlock()

	if err := t.Store.UpsertMonitor(ctx, in); err != nil {
		return err
	}
	id := in.ID
	t.onUndo(func() {
		if mon := t.monitors[id]; existed && mon != nil {
			*mon = prev
			return
		}
		delete(t.monitors, id)
	})
	return nil
}

func (t *txStore) AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	if err := t.Store.AppendHistory(ctx, rec); err != nil {
		return err
	}
	id, recID := rec.MonitorID, rec.ID
	t.onUndo(func() {
		recs := t.history[id]
		for i := range recs {
			if recs[i].ID == recID {
				t.history[id] = append(recs[:i:i], recs[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (t *txStore) OpenIncident(ctx context.Context, inc *domain.Incident) (bool, error) {
	created, err := t.Store.OpenIncident(ctx, inc)
	if created {
		incID := inc.ID
		t.onUndo(func() {
			for i := range t.incidents {
				if t.incidents[i].ID == incID {
					t.incidents = append(t.incidents[:i:i], t.incidents[i+1:]...)
					return
				}
			}
		})
	}
	return created, err
}

func (t *txStore) CloseOpenIncident(ctx context.Context, id domain.MonitorID, endedAt time.Time) (*domain.Incident, error) {
	inc, err := t.Store.CloseOpenIncident(ctx, id, endedAt)
	if inc != nil {
		incID := inc.ID
		t.onUndo(func() {
			for i := range t.incidents {
				if t.incidents[i].ID == incID {
					t.incidents[i].EndedAt = nil
					t.incidents[i].DurationMinutes = nil
				}
			}
		})
	}
	return inc, err
}

func (t *txStore) MarkAlertSent(ctx context.Context, incidentID int64, failureCount int) error {
	var prev domain.Incident
	t.mu.RLock()
	for _, cur := range t.incidents {
		if cur.ID == incidentID {
			prev = cur
		}
	}
	t.mu.RUnlock()

	if err := t.Store.MarkAlertSent(ctx, incidentID, failureCount); err != nil {
		return err
	}
	t.onUndo(func() {
		for i := range t.incidents {
			if t.incidents[i].ID == incidentID {
				t.incidents[i].AlertSent = prev.AlertSent
				t.incidents[i].FailureCountAtAlert = prev.FailureCountAtAlert
			}
		}
	})
	return nil
}

func (t *txStore) UpsertHourly(ctx context.Context, h *domain.PerformanceHourly) error {
	key := hourKey{h.MonitorID, h.Hour.UTC().Unix()}
	t.mu.RLock()
	prev, existed := t.hourly[key]
	t.mu.RUnlock()

	if err := t.Store.UpsertHourly(ctx, h); err != nil {
		return err
	}
	t.onUndo(func() {
		if existed {
			t.hourly[key] = prev
			return
		}
		delete(t.hourly, key)
	})
	return nil
}

func (t *txStore) UpsertDaily(ctx context.Context, d *domain.UptimeDaily) error {
	key := dayKey{d.MonitorID, d.Date}
	t.mu.RLock()
	prev, existed := t.daily[key]
	t.mu.RUnlock()

	if err := t.Store.UpsertDaily(ctx, d); err != nil {
		return err
	}
	t.onUndo(func() {
		if existed {
			t.daily[key] = prev
			return
		}
		delete(t.daily, key)
	})
	return nil
}

func (t *txStore) CreateUser(ctx context.Context, name string) (int64, error) {
	id, err := t.Store.CreateUser(ctx, name)
	if err != nil {
		return id, err
	}
	t.onUndo(func() { delete(t.users, id) })
	return id, nil
}

func (t *txStore) AddChannel(ctx context.Context, ch *domain.NotificationChannel) error {
	if err := t.Store.AddChannel(ctx, ch); err != nil {
		return err
	}
	chID := ch.ID
	t.onUndo(func() {
		for i := range t.channels {
			if t.channels[i].ID == chID {
				t.channels = append(t.channels[:i:i], t.channels[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (t *txStore) Subscribe(ctx context.Context, id domain.MonitorID, userID int64, active bool) error {
	t.mu.RLock()
	prev, existed := t.subs[id][userID]
	t.mu.RUnlock()

	if err := t.Store.Subscribe(ctx, id, userID, active); err != nil {
		return err
	}
	t.onUndo(func() {
		if existed {
			t.subs[id][userID] = prev
			return
		}
		delete(t.subs[id], userID)
	})
	return nil
}
