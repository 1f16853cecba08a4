package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/repo"
)

type hourKey struct {
	id   domain.MonitorID
	hour int64
}

type dayKey struct {
	id   domain.MonitorID
	date string
}

// Store keeps everything in process memory; use it for development and
// tests. Atomic serializes callers and undoes the writes made through its
// view when fn fails.
type Store struct {
	txMu sync.Mutex

	mu        sync.RWMutex
	seq       int64
	monitors  map[domain.MonitorID]*domain.Monitor
	history   map[domain.MonitorID][]domain.HistoryRecord
	incidents []domain.Incident
	hourly    map[hourKey]domain.PerformanceHourly
	daily     map[dayKey]domain.UptimeDaily
	users     map[int64]string
	channels  []domain.NotificationChannel
	subs      map[domain.MonitorID]map[int64]bool
}

func New() *Store {
	return &Store{
		monitors: make(map[domain.MonitorID]*domain.Monitor),
		history:  make(map[domain.MonitorID][]domain.HistoryRecord),
		hourly:   make(map[hourKey]domain.PerformanceHourly),
		daily:    make(map[dayKey]domain.UptimeDaily),
		users:    make(map[int64]string),
		subs:     make(map[domain.MonitorID]map[int64]bool),
	}
}

var _ repo.Store = (*Store)(nil)

func (m *Store) next() int64 {
	m.seq++
	return m.seq
}

func (m *Store) Atomic(ctx context.Context, fn func(tx repo.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	tx := &txStore{Store: m}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (m *Store) Close() error { return nil }

// ---- MonitorStore ----

func (m *Store) ListMonitors(ctx context.Context) ([]domain.Monitor, error) {
	return m.list(func(domain.Monitor) bool { return true }), nil
}

func (m *Store) ListEnabled(ctx context.Context) ([]domain.Monitor, error) {
	return m.list(func(mon domain.Monitor) bool { return mon.UptimeCheckEnabled }), nil
}

func (m *Store) list(keep func(domain.Monitor) bool) []domain.Monitor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		if keep(*mon) {
			out = append(out, cloneMonitor(mon))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c := cloneMonitor(mon)
	return &c, nil
}

func (m *Store) LockMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	return m.GetMonitor(ctx, id)
}

func (m *Store) SaveLiveState(ctx context.Context, id domain.MonitorID, live domain.LiveState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.monitors[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	if live.LastCheck.Before(mon.Live.LastCheck) {
		return false, nil
	}
	mon.Live = live
	return true, nil
}

func (m *Store) SaveCertificate(ctx context.Context, id domain.MonitorID, cert domain.CertificateState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.monitors[id]
	if !ok {
		return repo.ErrNotFound
	}
	mon.Certificate = cert
	return nil
}

func (m *Store) UpsertMonitor(ctx context.Context, in *domain.Monitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mon := range m.monitors {
		if mon.URL == in.URL {
			id, live, cert, created := mon.ID, mon.Live, mon.Certificate, mon.CreatedAt
			*mon = cloneMonitor(in)
			mon.ID, mon.Live, mon.Certificate, mon.CreatedAt = id, live, cert, created
			in.ID = mon.ID
			return nil
		}
	}
	in.ID = domain.MonitorID(m.next())
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if in.Live.Status == "" {
		in.Live.Status = domain.StatusUnknown
	}
	if in.Live.State == "" {
		in.Live.State = domain.StateHealthy
	}
	c := cloneMonitor(in)
	m.monitors[in.ID] = &c
	return nil
}

func cloneMonitor(in *domain.Monitor) domain.Monitor {
	out := *in
	out.StatusPageIDs = append([]int64(nil), in.StatusPageIDs...)
	return out
}

// ---- HistoryStore ----

func (m *Store) AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.next()
	m.history[rec.MonitorID] = append(m.history[rec.MonitorID], *rec)
	return nil
}

func (m *Store) ListHistory(ctx context.Context, id domain.MonitorID, from, to time.Time) ([]domain.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.HistoryRecord
	for _, r := range m.history[id] {
		if !r.CheckedAt.Before(from) && r.CheckedAt.Before(to) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedAt.Before(out[j].CheckedAt) })
	return out, nil
}

// ---- IncidentStore ----

func (m *Store) OpenIncident(ctx context.Context, inc *domain.Incident) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.incidents {
		if cur.MonitorID == inc.MonitorID && cur.Open() {
			return false, nil
		}
	}
	inc.ID = m.next()
	m.incidents = append(m.incidents, *inc)
	return true, nil
}

func (m *Store) CloseOpenIncident(ctx context.Context, id domain.MonitorID, endedAt time.Time) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.incidents {
		cur := &m.incidents[i]
		if cur.MonitorID != id || !cur.Open() {
			continue
		}
		end := endedAt
		mins := domain.DurationMinutes(cur.StartedAt, end)
		cur.EndedAt = &end
		cur.DurationMinutes = &mins
		out := *cur
		return &out, nil
	}
	return nil, nil
}

func (m *Store) GetOpenIncident(ctx context.Context, id domain.MonitorID) (*domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cur := range m.incidents {
		if cur.MonitorID == id && cur.Open() {
			out := cur
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Store) ListIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Incident
	for _, cur := range m.incidents {
		if cur.MonitorID == id {
			out = append(out, cur)
		}
	}
	return out, nil
}

func (m *Store) MarkAlertSent(ctx context.Context, incidentID int64, failureCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.incidents {
		if m.incidents[i].ID == incidentID {
			m.incidents[i].AlertSent = true
			m.incidents[i].FailureCountAtAlert = failureCount
			return nil
		}
	}
	return repo.ErrNotFound
}

// ---- StatsStore ----

func (m *Store) UpsertHourly(ctx context.Context, h *domain.PerformanceHourly) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hourly[hourKey{h.MonitorID, h.Hour.UTC().Unix()}] = *h
	return nil
}

func (m *Store) GetHourly(ctx context.Context, id domain.MonitorID, hour time.Time) (*domain.PerformanceHourly, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hourly[hourKey{id, hour.UTC().Unix()}]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &h, nil
}

func (m *Store) UpsertDaily(ctx context.Context, d *domain.UptimeDaily) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily[dayKey{d.MonitorID, d.Date}] = *d
	return nil
}

func (m *Store) GetDaily(ctx context.Context, id domain.MonitorID, date string) (*domain.UptimeDaily, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.daily[dayKey{id, date}]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &d, nil
}

func (m *Store) ListDaily(ctx context.Context, date string) ([]domain.UptimeDaily, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.UptimeDaily
	for k, d := range m.daily {
		if k.date == date {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MonitorID < out[j].MonitorID })
	return out, nil
}

// ---- Subscriptions ----

func (m *Store) ActiveSubscribers(ctx context.Context, id domain.MonitorID) ([]domain.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var userIDs []int64
	for uid, active := range m.subs[id] {
		if active {
			userIDs = append(userIDs, uid)
		}
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	out := make([]domain.Subscriber, 0, len(userIDs))
	for _, uid := range userIDs {
		s := domain.Subscriber{UserID: uid, Name: m.users[uid]}
		for _, ch := range m.channels {
			if ch.UserID == uid {
				s.Channels = append(s.Channels, ch)
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Store) CreateUser(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next()
	m.users[id] = name
	return id, nil
}

func (m *Store) AddChannel(ctx context.Context, ch *domain.NotificationChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[ch.UserID]; !ok {
		return repo.ErrNotFound
	}
	ch.ID = m.next()
	m.channels = append(m.channels, *ch)
	return nil
}

func (m *Store) Subscribe(ctx context.Context, id domain.MonitorID, userID int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[id]; !ok {
		return repo.ErrNotFound
	}
	if m.subs[id] == nil {
		m.subs[id] = make(map[int64]bool)
	}
	m.subs[id][userID] = active
	return nil
}
