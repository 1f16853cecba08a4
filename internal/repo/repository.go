package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Ports (interfaces) implemented by the memory, sqlite and postgres adapters.

type MonitorStore interface {
	ListMonitors(ctx context.Context) ([]domain.Monitor, error)
	// ListEnabled returns monitors with uptime checks enabled.
	ListEnabled(ctx context.Context) ([]domain.Monitor, error)
	GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	// LockMonitor is GetMonitor plus a row lock where the engine supports it.
	// Only meaningful inside Atomic.
	LockMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	// SaveLiveState writes live only if live.LastCheck is not older than the
	// stored last check. It returns false for such stale writes.
	SaveLiveState(ctx context.Context, id domain.MonitorID, live domain.LiveState) (bool, error)
	SaveCertificate(ctx context.Context, id domain.MonitorID, cert domain.CertificateState) error
	// UpsertMonitor inserts or updates the configuration of m matched by URL
	// and sets m.ID. Live state is left untouched on update.
	UpsertMonitor(ctx context.Context, m *domain.Monitor) error
}

type HistoryStore interface {
	AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error
	// ListHistory returns records with from <= checked_at < to, oldest first.
	ListHistory(ctx context.Context, id domain.MonitorID, from, to time.Time) ([]domain.HistoryRecord, error)
}

type IncidentStore interface {
	// OpenIncident inserts inc unless the monitor already has an open
	// incident. created is false for the no-op case.
	OpenIncident(ctx context.Context, inc *domain.Incident) (created bool, err error)
	// CloseOpenIncident ends the open incident, if any, and returns it.
	// It returns nil, nil when nothing was open.
	CloseOpenIncident(ctx context.Context, id domain.MonitorID, endedAt time.Time) (*domain.Incident, error)
	// GetOpenIncident returns nil, nil when nothing is open.
	GetOpenIncident(ctx context.Context, id domain.MonitorID) (*domain.Incident, error)
	ListIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error)
	MarkAlertSent(ctx context.Context, incidentID int64, failureCount int) error
}

type StatsStore interface {
	UpsertHourly(ctx context.Context, h *domain.PerformanceHourly) error
	GetHourly(ctx context.Context, id domain.MonitorID, hour time.Time) (*domain.PerformanceHourly, error)
	UpsertDaily(ctx context.Context, d *domain.UptimeDaily) error
	GetDaily(ctx context.Context, id domain.MonitorID, date string) (*domain.UptimeDaily, error)
	ListDaily(ctx context.Context, date string) ([]domain.UptimeDaily, error)
}

type SubscriptionStore interface {
	// ActiveSubscribers returns users with an active subscription to the
	// monitor, each with all of their channels (enabled or not).
	ActiveSubscribers(ctx context.Context, id domain.MonitorID) ([]domain.Subscriber, error)
}

// SubscriptionWriter is the narrow write side used for seeding; user and
// channel management otherwise lives outside this module.
type SubscriptionWriter interface {
	CreateUser(ctx context.Context, name string) (int64, error)
	AddChannel(ctx context.Context, ch *domain.NotificationChannel) error
	Subscribe(ctx context.Context, id domain.MonitorID, userID int64, active bool) error
}

type Store interface {
	MonitorStore
	HistoryStore
	IncidentStore
	StatsStore
	SubscriptionStore
	SubscriptionWriter

	// Atomic runs fn against a transactional view of the store. Any error
	// returned by fn rolls back every write made through that view.
	Atomic(ctx context.Context, fn func(tx Store) error) error
	Close() error
}
