package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("postgres_store_ready")
	return &Store{pool: pool, q: pool, log: log}, nil
}

func (s *Store) Close() error {
	if s.pool != nil && !s.inTx {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Atomic(ctx context.Context, fn func(tx repo.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, q: tx, inTx: true, log: s.log}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ---- MonitorStore ----

const monitorColumns = `id, name, url, favicon, uptime_check_enabled, cert_check_enabled, interval_minutes,
	visibility, status_page_ids, status, state, failure_streak, last_failure_reason, last_check_at,
	pending_since, cert_status, cert_expires_at, cert_issuer, cert_reason, cert_checked_at, created_at`

func scanMonitor(row pgx.Row) (domain.Monitor, error) {
	var (
		m                               domain.Monitor
		id                              int64
		visibility, status, state, cert string
		lastCheck, pending, certChecked *time.Time
	)
	err := row.Scan(&id, &m.Name, &m.URL, &m.Favicon, &m.UptimeCheckEnabled, &m.CertCheckEnabled,
		&m.IntervalMinutes, &visibility, &m.StatusPageIDs, &status, &state, &m.Live.FailureStreak,
		&m.Live.LastFailureReason, &lastCheck, &pending, &cert, &m.Certificate.ExpiresAt,
		&m.Certificate.Issuer, &m.Certificate.Reason, &certChecked, &m.CreatedAt)
	if err != nil {
		return m, err
	}
	m.ID = domain.MonitorID(id)
	m.Visibility = domain.Visibility(visibility)
	m.Live.Status = domain.Status(status)
	m.Live.State = domain.ConfirmationState(state)
	m.Live.LastCheck = deref(lastCheck)
	m.Live.PendingSince = deref(pending)
	m.Certificate.Status = domain.CertificateStatus(cert)
	m.Certificate.CheckedAt = deref(certChecked)
	return m, nil
}

func (s *Store) listMonitors(ctx context.Context, where string) ([]domain.Monitor, error) {
	rows, err := s.q.Query(ctx, `SELECT `+monitorColumns+` FROM monitors `+where+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()
	var out []domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ListMonitors(ctx context.Context) ([]domain.Monitor, error) {
	return s.listMonitors(ctx, "")
}

func (s *Store) ListEnabled(ctx context.Context) ([]domain.Monitor, error) {
	return s.listMonitors(ctx, "WHERE uptime_check_enabled")
}

func (s *Store) getMonitor(ctx context.Context, id domain.MonitorID, suffix string) (*domain.Monitor, error) {
	m, err := scanMonitor(s.q.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1`+suffix, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return &m, nil
}

func (s *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	return s.getMonitor(ctx, id, "")
}

func (s *Store) LockMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	if !s.inTx {
		return s.GetMonitor(ctx, id)
	}
	return s.getMonitor(ctx, id, " FOR UPDATE")
}

func (s *Store) SaveLiveState(ctx context.Context, id domain.MonitorID, live domain.LiveState) (bool, error) {
	tag, err := s.q.Exec(ctx, `
UPDATE monitors
   SET status = $2, state = $3, failure_streak = $4, last_failure_reason = $5,
       last_check_at = $6, pending_since = $7
 WHERE id = $1 AND (last_check_at IS NULL OR last_check_at <= $6)`,
		int64(id), string(live.Status), string(live.State), live.FailureStreak, live.LastFailureReason,
		timePtr(live.LastCheck), timePtr(live.PendingSince))
	if err != nil {
		return false, fmt.Errorf("save live state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetMonitor(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) SaveCertificate(ctx context.Context, id domain.MonitorID, cert domain.CertificateState) error {
	tag, err := s.q.Exec(ctx, `
UPDATE monitors
   SET cert_status = $2, cert_expires_at = $3, cert_issuer = $4, cert_reason = $5, cert_checked_at = $6
 WHERE id = $1`,
		int64(id), string(cert.Status), cert.ExpiresAt, cert.Issuer, cert.Reason, timePtr(cert.CheckedAt))
	if err != nil {
		return fmt.Errorf("save certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertMonitor(ctx context.Context, m *domain.Monitor) error {
	visibility := m.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}
	ids := m.StatusPageIDs
	if ids == nil {
		ids = []int64{}
	}
	var id int64
	err := s.q.QueryRow(ctx, `
INSERT INTO monitors (name, url, favicon, uptime_check_enabled, cert_check_enabled, interval_minutes, visibility, status_page_ids)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (url) DO UPDATE
   SET name = EXCLUDED.name, favicon = EXCLUDED.favicon,
       uptime_check_enabled = EXCLUDED.uptime_check_enabled,
       cert_check_enabled = EXCLUDED.cert_check_enabled,
       interval_minutes = EXCLUDED.interval_minutes,
       visibility = EXCLUDED.visibility, status_page_ids = EXCLUDED.status_page_ids
RETURNING id`,
		m.Name, m.URL, m.Favicon, m.UptimeCheckEnabled, m.CertCheckEnabled, m.IntervalMinutes,
		string(visibility), ids).Scan(&id)
	if err != nil {
		return fmt.Errorf("upsert monitor: %w", err)
	}
	m.ID = domain.MonitorID(id)
	return nil
}

// ---- HistoryStore ----

func (s *Store) AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	err := s.q.QueryRow(ctx, `
INSERT INTO monitor_history (monitor_id, status, response_time_ms, status_code, message, checked_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		int64(rec.MonitorID), string(rec.Status), rec.ResponseTimeMS, rec.StatusCode, rec.Message, rec.CheckedAt.UTC(),
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (s *Store) ListHistory(ctx context.Context, id domain.MonitorID, from, to time.Time) ([]domain.HistoryRecord, error) {
	rows, err := s.q.Query(ctx, `
SELECT id, status, response_time_ms, status_code, message, checked_at
  FROM monitor_history
 WHERE monitor_id = $1 AND checked_at >= $2 AND checked_at < $3
 ORDER BY checked_at, id`, int64(id), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	var out []domain.HistoryRecord
	for rows.Next() {
		r := domain.HistoryRecord{MonitorID: id}
		var status string
		if err := rows.Scan(&r.ID, &status, &r.ResponseTimeMS, &r.StatusCode, &r.Message, &r.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.Status = domain.Status(status)
		r.CheckedAt = r.CheckedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- IncidentStore ----

const incidentColumns = `id, monitor_id, type, started_at, ended_at, duration_minutes, reason,
	response_time_ms, status_code, alert_sent, failure_count_at_alert`

func scanIncident(row pgx.Row) (domain.Incident, error) {
	var (
		inc       domain.Incident
		monitorID int64
		typ       string
	)
	err := row.Scan(&inc.ID, &monitorID, &typ, &inc.StartedAt, &inc.EndedAt, &inc.DurationMinutes,
		&inc.Reason, &inc.ResponseTimeMS, &inc.StatusCode, &inc.AlertSent, &inc.FailureCountAtAlert)
	inc.MonitorID = domain.MonitorID(monitorID)
	inc.Type = domain.IncidentType(typ)
	return inc, err
}

// OpenIncident relies on idx_incidents_one_open.
func (s *Store) OpenIncident(ctx context.Context, inc *domain.Incident) (bool, error) {
	err := s.q.QueryRow(ctx, `
INSERT INTO incidents (monitor_id, type, started_at, reason, response_time_ms, status_code)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (monitor_id) WHERE ended_at IS NULL DO NOTHING
RETURNING id`,
		int64(inc.MonitorID), string(inc.Type), inc.StartedAt.UTC(), inc.Reason, inc.ResponseTimeMS, inc.StatusCode,
	).Scan(&inc.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open incident: %w", err)
	}
	return true, nil
}

func (s *Store) CloseOpenIncident(ctx context.Context, id domain.MonitorID, endedAt time.Time) (*domain.Incident, error) {
	inc, err := scanIncident(s.q.QueryRow(ctx, `
UPDATE incidents
   SET ended_at = $2,
       duration_minutes = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2 - started_at)) / 60))::int
 WHERE monitor_id = $1 AND ended_at IS NULL
RETURNING `+incidentColumns, int64(id), endedAt.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("close incident: %w", err)
	}
	return &inc, nil
}

func (s *Store) GetOpenIncident(ctx context.Context, id domain.MonitorID) (*domain.Incident, error) {
	inc, err := scanIncident(s.q.QueryRow(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE monitor_id = $1 AND ended_at IS NULL`, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open incident: %w", err)
	}
	return &inc, nil
}

func (s *Store) ListIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE monitor_id = $1 ORDER BY started_at, id`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()
	var out []domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *Store) MarkAlertSent(ctx context.Context, incidentID int64, failureCount int) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE incidents SET alert_sent = TRUE, failure_count_at_alert = $2 WHERE id = $1`,
		incidentID, failureCount)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- StatsStore ----

func (s *Store) UpsertHourly(ctx context.Context, h *domain.PerformanceHourly) error {
	_, err := s.q.Exec(ctx, `
INSERT INTO performance_hourly
  (monitor_id, hour, success_count, failure_count, avg_response_ms, p95_response_ms, p99_response_ms, uptime_percentage, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (monitor_id, hour) DO UPDATE
   SET success_count = EXCLUDED.success_count, failure_count = EXCLUDED.failure_count,
       avg_response_ms = EXCLUDED.avg_response_ms, p95_response_ms = EXCLUDED.p95_response_ms,
       p99_response_ms = EXCLUDED.p99_response_ms, uptime_percentage = EXCLUDED.uptime_percentage,
       updated_at = now()`,
		int64(h.MonitorID), h.Hour.UTC(), h.SuccessCount, h.FailureCount, h.AvgResponseMS,
		h.P95ResponseMS, h.P99ResponseMS, h.UptimePercentage)
	if err != nil {
		return fmt.Errorf("upsert hourly: %w", err)
	}
	return nil
}

func (s *Store) GetHourly(ctx context.Context, id domain.MonitorID, hour time.Time) (*domain.PerformanceHourly, error) {
	h := domain.PerformanceHourly{MonitorID: id}
	err := s.q.QueryRow(ctx, `
SELECT hour, success_count, failure_count, avg_response_ms, p95_response_ms, p99_response_ms, uptime_percentage
  FROM performance_hourly WHERE monitor_id = $1 AND hour = $2`, int64(id), hour.UTC()).
		Scan(&h.Hour, &h.SuccessCount, &h.FailureCount, &h.AvgResponseMS, &h.P95ResponseMS, &h.P99ResponseMS, &h.UptimePercentage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hourly: %w", err)
	}
	h.Hour = h.Hour.UTC()
	return &h, nil
}

func (s *Store) UpsertDaily(ctx context.Context, d *domain.UptimeDaily) error {
	_, err := s.q.Exec(ctx, `
INSERT INTO uptime_daily
  (monitor_id, date, total_checks, success_count, failed_count, uptime_percentage,
   avg_response_ms, min_response_ms, max_response_ms, updated_at)
VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (monitor_id, date) DO UPDATE
   SET total_checks = EXCLUDED.total_checks, success_count = EXCLUDED.success_count,
       failed_count = EXCLUDED.failed_count, uptime_percentage = EXCLUDED.uptime_percentage,
       avg_response_ms = EXCLUDED.avg_response_ms, min_response_ms = EXCLUDED.min_response_ms,
       max_response_ms = EXCLUDED.max_response_ms, updated_at = now()`,
		int64(d.MonitorID), d.Date, d.TotalChecks, d.SuccessCount, d.FailedCount, d.UptimePercentage,
		d.AvgResponseMS, d.MinResponseMS, d.MaxResponseMS)
	if err != nil {
		return fmt.Errorf("upsert daily: %w", err)
	}
	return nil
}

const dailyColumns = `monitor_id, to_char(date, 'YYYY-MM-DD'), total_checks, success_count, failed_count,
	uptime_percentage, avg_response_ms, min_response_ms, max_response_ms`

func scanDaily(row pgx.Row) (domain.UptimeDaily, error) {
	var (
		d  domain.UptimeDaily
		id int64
	)
	err := row.Scan(&id, &d.Date, &d.TotalChecks, &d.SuccessCount, &d.FailedCount, &d.UptimePercentage,
		&d.AvgResponseMS, &d.MinResponseMS, &d.MaxResponseMS)
	d.MonitorID = domain.MonitorID(id)
	return d, err
}

func (s *Store) GetDaily(ctx context.Context, id domain.MonitorID, date string) (*domain.UptimeDaily, error) {
	d, err := scanDaily(s.q.QueryRow(ctx,
		`SELECT `+dailyColumns+` FROM uptime_daily WHERE monitor_id = $1 AND date = $2::date`, int64(id), date))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get daily: %w", err)
	}
	return &d, nil
}

func (s *Store) ListDaily(ctx context.Context, date string) ([]domain.UptimeDaily, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+dailyColumns+` FROM uptime_daily WHERE date = $1::date ORDER BY monitor_id`, date)
	if err != nil {
		return nil, fmt.Errorf("list daily: %w", err)
	}
	defer rows.Close()
	var out []domain.UptimeDaily
	for rows.Next() {
		d, err := scanDaily(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ---- Subscriptions ----

func (s *Store) ActiveSubscribers(ctx context.Context, id domain.MonitorID) ([]domain.Subscriber, error) {
	rows, err := s.q.Query(ctx, `
SELECT u.id, u.name, c.id, c.type, c.destination, c.enabled, c.metadata
  FROM monitor_subscriptions ms
  JOIN users u ON u.id = ms.user_id
  LEFT JOIN notification_channels c ON c.user_id = u.id
 WHERE ms.monitor_id = $1 AND ms.is_active
 ORDER BY u.id, c.id`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("active subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		var (
			uid       int64
			name      string
			chID      *int64
			typ, dest *string
			enabled   *bool
			meta      map[string]string
		)
		if err := rows.Scan(&uid, &name, &chID, &typ, &dest, &enabled, &meta); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].UserID != uid {
			out = append(out, domain.Subscriber{UserID: uid, Name: name})
		}
		if chID == nil {
			continue
		}
		cur := &out[len(out)-1]
		cur.Channels = append(cur.Channels, domain.NotificationChannel{
			ID:          *chID,
			UserID:      uid,
			Type:        domain.ChannelType(*typ),
			Destination: *dest,
			Enabled:     *enabled,
			Metadata:    meta,
		})
	}
	return out, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := s.q.QueryRow(ctx, `INSERT INTO users (name) VALUES ($1) RETURNING id`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

func (s *Store) AddChannel(ctx context.Context, ch *domain.NotificationChannel) error {
	meta := ch.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	err := s.q.QueryRow(ctx, `
INSERT INTO notification_channels (user_id, type, destination, enabled, metadata)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		ch.UserID, string(ch.Type), ch.Destination, ch.Enabled, meta).Scan(&ch.ID)
	if err != nil {
		return fmt.Errorf("add channel: %w", err)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, id domain.MonitorID, userID int64, active bool) error {
	_, err := s.q.Exec(ctx, `
INSERT INTO monitor_subscriptions (monitor_id, user_id, is_active) VALUES ($1, $2, $3)
ON CONFLICT (monitor_id, user_id) DO UPDATE SET is_active = EXCLUDED.is_active`,
		int64(id), userID, active)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
