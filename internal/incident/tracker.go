// Package incident keeps at most one open incident per monitor.
package incident

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimecore/internal/domain"
	"github.com/hamed0406/uptimecore/internal/repo"
)

// Failure is what gets captured on the incident when it opens.
type Failure struct {
	Reason         string
	ResponseTimeMS *int
	StatusCode     *int
	At             time.Time
}

type Tracker struct {
	log *zap.Logger
}

func NewTracker(log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{log: log}
}

// OpenOrIgnore opens a down incident unless one is already open. It returns
// the open incident and whether this call created it. The store's
// uniqueness rule decides races between concurrent callers.
func (t *Tracker) OpenOrIgnore(ctx context.Context, st repo.IncidentStore, id domain.MonitorID, f Failure) (*domain.Incident, bool, error) {
	inc := &domain.Incident{
		MonitorID:      id,
		Type:           domain.IncidentDown,
		StartedAt:      f.At.UTC(),
		Reason:         f.Reason,
		ResponseTimeMS: f.ResponseTimeMS,
		StatusCode:     f.StatusCode,
	}
	created, err := st.OpenIncident(ctx, inc)
	if err != nil {
		return nil, false, fmt.Errorf("open incident: %w", err)
	}
	if created {
		t.log.Info("incident_opened", zap.Int64("monitor_id", int64(id)), zap.Int64("incident_id", inc.ID), zap.String("reason", f.Reason))
		return inc, true, nil
	}

	existing, err := st.GetOpenIncident(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("get open incident: %w", err)
	}
	t.log.Debug("incident_already_open", zap.Int64("monitor_id", int64(id)))
	return existing, false, nil
}

// CloseOpenIncident ends the monitor's open incident at endedAt. It returns
// nil when there was nothing to close.
func (t *Tracker) CloseOpenIncident(ctx context.Context, st repo.IncidentStore, id domain.MonitorID, endedAt time.Time) (*domain.Incident, error) {
	inc, err := st.CloseOpenIncident(ctx, id, endedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("close incident: %w", err)
	}
	if inc == nil {
		return nil, nil
	}
	dur := 0
	if inc.DurationMinutes != nil {
		dur = *inc.DurationMinutes
	}
	t.log.Info("incident_closed", zap.Int64("monitor_id", int64(id)), zap.Int64("incident_id", inc.ID), zap.Int("duration_minutes", dur))
	return inc, nil
}
