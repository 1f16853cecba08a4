package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/history"
	"github.com/hamed0406/uptimecore/internal/incident"
	"github.com/hamed0406/uptimecore/internal/metrics"
	"github.com/hamed0406/uptimecore/internal/notify"
	"github.com/hamed0406/uptimecore/internal/repo"
)

type HourlyUpdater interface {
	UpdateHourlyMetrics(ctx context.Context, id domain.MonitorID, at time.Time, responseTimeMS *int, success bool) error
}

type Dispatcher interface {
	Dispatch(p domain.Payload) bool
	DispatchThen(p domain.Payload, done func(notify.Summary, error)) bool
}

type Publisher interface {
	Publish(m domain.Monitor, old, cur domain.Status, at time.Time) (domain.StatusChange, bool)
}

// Recorded is what Record wrote for one event.
type Recorded struct {
	History domain.HistoryRecord
	Opened  *domain.Incident // set only when this event created the incident
	Closed  *domain.Incident
}

// Alerter turns confirmed events into history, incidents, rollups,
// notifications and status-change broadcasts.
type Alerter struct {
	incidents *incident.Tracker
	alerts    repo.IncidentStore
	hourly    HourlyUpdater
	router    Dispatcher
	hub       Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewAlerter(alerts repo.IncidentStore, hourly HourlyUpdater, router Dispatcher, hub Publisher, m *metrics.Metrics, log *zap.Logger) *Alerter {
	if m == nil {
		m = metrics.Nop()
	}
	return &Alerter{
		incidents: incident.NewTracker(log),
		alerts:    alerts,
		hourly:    hourly,
		router:    router,
		hub:       hub,
		metrics:   m,
		log:       log,
	}
}

// Record writes the history row and opens or closes the incident. It runs
// inside the caller's transaction.
func (a *Alerter) Record(ctx context.Context, tx repo.Store, e domain.Event) (Recorded, error) {
	out := Recorded{History: history.Record(e)}
	if err := tx.AppendHistory(ctx, &out.History); err != nil {
		return out, fmt.Errorf("append history: %w", err)
	}

	switch e.Kind {
	case domain.EventFailure:
		inc, created, err := a.incidents.OpenOrIgnore(ctx, tx, e.MonitorID, incident.Failure{
			Reason:         e.Reason,
			ResponseTimeMS: out.History.ResponseTimeMS,
			StatusCode:     out.History.StatusCode,
			At:             e.Outcome.CheckedAt,
		})
		if err != nil {
			return out, err
		}
		if created {
			out.Opened = inc
		}
	case domain.EventRecovery:
		inc, err := a.incidents.CloseOpenIncident(ctx, tx, e.MonitorID, e.Outcome.CheckedAt)
		if err != nil {
			return out, err
		}
		out.Closed = inc
	case domain.EventSuccess:
	}
	return out, nil
}

// markSent records the alert on the incident once at least one channel
// actually accepted the down notification.
func (a *Alerter) markSent(incidentID int64, streak int) func(notify.Summary, error) {
	return func(sum notify.Summary, err error) {
		if err != nil || sum.Sent == 0 {
			a.log.Warn("alert_not_delivered", zap.Int64("incident_id", incidentID), zap.Int("attempted", sum.Attempted), zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.alerts.MarkAlertSent(ctx, incidentID, streak); err != nil {
			a.log.Warn("mark_alert_sent_failed", zap.Int64("incident_id", incidentID), zap.Error(err))
		}
	}
}

// Announce runs after commit. Nothing here can undo the recorded state;
// failures are logged and dropped.
func (a *Alerter) Announce(ctx context.Context, m domain.Monitor, e domain.Event, r Recorded) {
	if a.hourly != nil {
		if err := a.hourly.UpdateHourlyMetrics(ctx, m.ID, e.Outcome.CheckedAt, e.Outcome.ResponseTimeMS, e.Kind != domain.EventFailure); err != nil {
			a.log.Warn("hourly_metrics_failed", zap.Int64("monitor_id", int64(m.ID)), zap.Error(err))
		}
	}

	if r.Opened != nil {
		a.metrics.IncidentsOpened.Inc()
		p := domain.Payload{MonitorID: m.ID, URL: m.URL, Status: domain.StatusDown, Message: e.Reason}
		if a.router != nil {
			a.router.DispatchThen(p, a.markSent(r.Opened.ID, e.Streak))
		}
	}
	if r.Closed != nil {
		a.metrics.IncidentsClosed.Inc()
		mins := 0
		if r.Closed.DurationMinutes != nil {
			mins = *r.Closed.DurationMinutes
		}
		p := domain.Payload{MonitorID: m.ID, URL: m.URL, Status: domain.StatusUp, Message: fmt.Sprintf("recovered after %d minutes", mins)}
		if a.router != nil {
			a.router.Dispatch(p)
		}
	}

	if e.Transition() && a.hub != nil {
		if _, ok := a.hub.Publish(m, e.OldStatus, e.NewStatus, e.Outcome.CheckedAt); ok {
			a.metrics.StatusChanges.Inc()
		}
	}
}
