package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/repo"
)

// Store is the single-node adapter: gorm over the pure-Go sqlite driver.
type Store struct {
	db  *gorm.DB
	sql *sql.DB // nil for transactional views
	log *zap.Logger
}

var _ repo.Store = (*Store)(nil)

func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; transactions serialize on this connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("gorm open: %w", err)
	}
	s := &Store{db: db, sql: sqlDB, log: log}
	if err := s.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	log.Info("sqlite_store_ready", zap.String("path", path))
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&monitorRow{}, &historyRow{}, &incidentRow{}, &hourlyRow{}, &dailyRow{},
		&userRow{}, &channelRow{}, &subscriptionRow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_incidents_one_open
		ON incidents(monitor_id) WHERE ended_at IS NULL`).Error; err != nil {
		return fmt.Errorf("create open incident index: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

func (s *Store) Atomic(ctx context.Context, fn func(tx repo.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, log: s.log})
	})
}

// ---- MonitorStore ----

func (s *Store) ListMonitors(ctx context.Context) ([]domain.Monitor, error) {
	var rows []monitorRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	return toMonitors(rows), nil
}

func (s *Store) ListEnabled(ctx context.Context) ([]domain.Monitor, error) {
	var rows []monitorRow
	if err := s.db.WithContext(ctx).Where("uptime_check_enabled = ?", true).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list enabled monitors: %w", err)
	}
	return toMonitors(rows), nil
}

func (s *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	var row monitorRow
	err := s.db.WithContext(ctx).First(&row, int64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	m := row.toDomain()
	return &m, nil
}

// LockMonitor relies on the single connection; sqlite has no row locks.
func (s *Store) LockMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	return s.GetMonitor(ctx, id)
}

func (s *Store) SaveLiveState(ctx context.Context, id domain.MonitorID, live domain.LiveState) (bool, error) {
	at := live.LastCheck.UTC()
	res := s.db.WithContext(ctx).Model(&monitorRow{}).
		Where("id = ? AND (last_check_at IS NULL OR last_check_at <= ?)", int64(id), at).
		Updates(map[string]any{
			"status":              string(live.Status),
			"state":               string(live.State),
			"failure_streak":      live.FailureStreak,
			"last_failure_reason": live.LastFailureReason,
			"last_check_at":       timePtr(live.LastCheck),
			"pending_since":       timePtr(live.PendingSince),
		})
	if res.Error != nil {
		return false, fmt.Errorf("save live state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetMonitor(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) SaveCertificate(ctx context.Context, id domain.MonitorID, cert domain.CertificateState) error {
	res := s.db.WithContext(ctx).Model(&monitorRow{}).Where("id = ?", int64(id)).
		Updates(map[string]any{
			"cert_status":     string(cert.Status),
			"cert_expires_at": cert.ExpiresAt,
			"cert_issuer":     cert.Issuer,
			"cert_reason":     cert.Reason,
			"cert_checked_at": timePtr(cert.CheckedAt),
		})
	if res.Error != nil {
		return fmt.Errorf("save certificate: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertMonitor(ctx context.Context, m *domain.Monitor) error {
	row := fromMonitor(*m)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "favicon", "uptime_check_enabled", "cert_check_enabled",
			"interval_minutes", "visibility", "status_page_ids",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert monitor: %w", err)
	}
	var saved monitorRow
	if err := s.db.WithContext(ctx).Where("url = ?", m.URL).First(&saved).Error; err != nil {
		return fmt.Errorf("reload monitor: %w", err)
	}
	m.ID = domain.MonitorID(saved.ID)
	return nil
}

// ---- HistoryStore ----

func (s *Store) AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	row := historyRow{
		MonitorID:      int64(rec.MonitorID),
		Status:         string(rec.Status),
		ResponseTimeMS: rec.ResponseTimeMS,
		StatusCode:     rec.StatusCode,
		Message:        rec.Message,
		CheckedAt:      rec.CheckedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	rec.ID = row.ID
	return nil
}

func (s *Store) ListHistory(ctx context.Context, id domain.MonitorID, from, to time.Time) ([]domain.HistoryRecord, error) {
	var rows []historyRow
	err := s.db.WithContext(ctx).
		Where("monitor_id = ? AND checked_at >= ? AND checked_at < ?", int64(id), from.UTC(), to.UTC()).
		Order("checked_at, id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	out := make([]domain.HistoryRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.HistoryRecord{
			ID:             r.ID,
			MonitorID:      domain.MonitorID(r.MonitorID),
			Status:         domain.Status(r.Status),
			ResponseTimeMS: r.ResponseTimeMS,
			StatusCode:     r.StatusCode,
			Message:        r.Message,
			CheckedAt:      r.CheckedAt.UTC(),
		})
	}
	return out, nil
}

// ---- IncidentStore ----

func (s *Store) OpenIncident(ctx context.Context, inc *domain.Incident) (bool, error) {
	row := fromIncident(*inc)
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("open incident: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	inc.ID = row.ID
	return true, nil
}

func (s *Store) CloseOpenIncident(ctx context.Context, id domain.MonitorID, endedAt time.Time) (*domain.Incident, error) {
	var closed *domain.Incident
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row incidentRow
		err := tx.Where("monitor_id = ? AND ended_at IS NULL", int64(id)).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		end := endedAt.UTC()
		mins := domain.DurationMinutes(row.StartedAt, end)
		res := tx.Model(&incidentRow{}).Where("id = ? AND ended_at IS NULL", row.ID).
			Updates(map[string]any{"ended_at": end, "duration_minutes": mins})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		row.EndedAt, row.DurationMinutes = &end, &mins
		inc := row.toDomain()
		closed = &inc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("close incident: %w", err)
	}
	return closed, nil
}

func (s *Store) GetOpenIncident(ctx context.Context, id domain.MonitorID) (*domain.Incident, error) {
	var row incidentRow
	err := s.db.WithContext(ctx).Where("monitor_id = ? AND ended_at IS NULL", int64(id)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open incident: %w", err)
	}
	inc := row.toDomain()
	return &inc, nil
}

func (s *Store) ListIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error) {
	var rows []incidentRow
	if err := s.db.WithContext(ctx).Where("monitor_id = ?", int64(id)).Order("started_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	out := make([]domain.Incident, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) MarkAlertSent(ctx context.Context, incidentID int64, failureCount int) error {
	res := s.db.WithContext(ctx).Model(&incidentRow{}).Where("id = ?", incidentID).
		Updates(map[string]any{"alert_sent": true, "failure_count_at_alert": failureCount})
	if res.Error != nil {
		return fmt.Errorf("mark alert sent: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- StatsStore ----

func (s *Store) UpsertHourly(ctx context.Context, h *domain.PerformanceHourly) error {
	row := hourlyRow{
		MonitorID:        int64(h.MonitorID),
		Hour:             h.Hour.UTC(),
		SuccessCount:     h.SuccessCount,
		FailureCount:     h.FailureCount,
		AvgResponseMS:    h.AvgResponseMS,
		P95ResponseMS:    h.P95ResponseMS,
		P99ResponseMS:    h.P99ResponseMS,
		UptimePercentage: h.UptimePercentage,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "monitor_id"}, {Name: "hour"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"success_count", "failure_count", "avg_response_ms", "p95_response_ms",
			"p99_response_ms", "uptime_percentage", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert hourly: %w", err)
	}
	return nil
}

func (s *Store) GetHourly(ctx context.Context, id domain.MonitorID, hour time.Time) (*domain.PerformanceHourly, error) {
	var row hourlyRow
	err := s.db.WithContext(ctx).Where("monitor_id = ? AND hour = ?", int64(id), hour.UTC()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hourly: %w", err)
	}
	return &domain.PerformanceHourly{
		MonitorID:        domain.MonitorID(row.MonitorID),
		Hour:             row.Hour.UTC(),
		SuccessCount:     row.SuccessCount,
		FailureCount:     row.FailureCount,
		AvgResponseMS:    row.AvgResponseMS,
		P95ResponseMS:    row.P95ResponseMS,
		P99ResponseMS:    row.P99ResponseMS,
		UptimePercentage: row.UptimePercentage,
	}, nil
}

func (s *Store) UpsertDaily(ctx context.Context, d *domain.UptimeDaily) error {
	row := dailyRow{
		MonitorID:        int64(d.MonitorID),
		Date:             d.Date,
		TotalChecks:      d.TotalChecks,
		SuccessCount:     d.SuccessCount,
		FailedCount:      d.FailedCount,
		UptimePercentage: d.UptimePercentage,
		AvgResponseMS:    d.AvgResponseMS,
		MinResponseMS:    d.MinResponseMS,
		MaxResponseMS:    d.MaxResponseMS,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "monitor_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_checks", "success_count", "failed_count", "uptime_percentage",
			"avg_response_ms", "min_response_ms", "max_response_ms", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert daily: %w", err)
	}
	return nil
}

func (s *Store) GetDaily(ctx context.Context, id domain.MonitorID, date string) (*domain.UptimeDaily, error) {
	var row dailyRow
	err := s.db.WithContext(ctx).Where("monitor_id = ? AND date = ?", int64(id), date).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get daily: %w", err)
	}
	d := row.toDomain()
	return &d, nil
}

func (s *Store) ListDaily(ctx context.Context, date string) ([]domain.UptimeDaily, error) {
	var rows []dailyRow
	if err := s.db.WithContext(ctx).Where("date = ?", date).Order("monitor_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list daily: %w", err)
	}
	out := make([]domain.UptimeDaily, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ---- Subscriptions ----

func (s *Store) ActiveSubscribers(ctx context.Context, id domain.MonitorID) ([]domain.Subscriber, error) {
	var users []userRow
	err := s.db.WithContext(ctx).
		Joins("JOIN monitor_subscriptions ms ON ms.user_id = users.id").
		Where("ms.monitor_id = ? AND ms.is_active = ?", int64(id), true).
		Order("users.id").Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("active subscribers: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	var chans []channelRow
	if err := s.db.WithContext(ctx).Where("user_id IN ?", ids).Order("id").Find(&chans).Error; err != nil {
		return nil, fmt.Errorf("subscriber channels: %w", err)
	}
	byUser := make(map[int64][]domain.NotificationChannel)
	for _, c := range chans {
		byUser[c.UserID] = append(byUser[c.UserID], domain.NotificationChannel{
			ID:          c.ID,
			UserID:      c.UserID,
			Type:        domain.ChannelType(c.Type),
			Destination: c.Destination,
			Enabled:     c.Enabled,
			Metadata:    c.Metadata,
		})
	}
	out := make([]domain.Subscriber, 0, len(users))
	for _, u := range users {
		out = append(out, domain.Subscriber{UserID: u.ID, Name: u.Name, Channels: byUser[u.ID]})
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, name string) (int64, error) {
	row := userRow{Name: name}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return row.ID, nil
}

func (s *Store) AddChannel(ctx context.Context, ch *domain.NotificationChannel) error {
	row := channelRow{
		UserID:      ch.UserID,
		Type:        string(ch.Type),
		Destination: ch.Destination,
		Enabled:     ch.Enabled,
		Metadata:    ch.Metadata,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("add channel: %w", err)
	}
	ch.ID = row.ID
	return nil
}

func (s *Store) Subscribe(ctx context.Context, id domain.MonitorID, userID int64, active bool) error {
	row := subscriptionRow{MonitorID: int64(id), UserID: userID, IsActive: active}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "monitor_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_active"}),
	}).Create(&row).Error
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
