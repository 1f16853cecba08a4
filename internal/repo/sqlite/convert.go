package sqlite

import (
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
)

func toMonitors(rows []monitorRow) []domain.Monitor {
	out := make([]domain.Monitor, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

func (r monitorRow) toDomain() domain.Monitor {
	return domain.Monitor{
		ID:                 domain.MonitorID(r.ID),
		Name:               r.Name,
		URL:                r.URL,
		Favicon:            r.Favicon,
		UptimeCheckEnabled: r.UptimeCheckEnabled,
		CertCheckEnabled:   r.CertCheckEnabled,
		IntervalMinutes:    r.IntervalMinutes,
		Visibility:         domain.Visibility(r.Visibility),
		StatusPageIDs:      r.StatusPageIDs,
		Live: domain.LiveState{
			Status:            domain.Status(r.Status),
			State:             domain.ConfirmationState(r.State),
			FailureStreak:     r.FailureStreak,
			LastFailureReason: r.LastFailureReason,
			LastCheck:         deref(r.LastCheckAt),
			PendingSince:      deref(r.PendingSince),
		},
		Certificate: domain.CertificateState{
			Status:    domain.CertificateStatus(r.CertStatus),
			ExpiresAt: r.CertExpiresAt,
			Issuer:    r.CertIssuer,
			Reason:    r.CertReason,
			CheckedAt: deref(r.CertCheckedAt),
		},
		CreatedAt: r.CreatedAt,
	}
}

func fromMonitor(m domain.Monitor) monitorRow {
	if m.Visibility == "" {
		m.Visibility = domain.VisibilityPrivate
	}
	if m.Live.Status == "" {
		m.Live.Status = domain.StatusUnknown
	}
	if m.Live.State == "" {
		m.Live.State = domain.StateHealthy
	}
	if m.Certificate.Status == "" {
		m.Certificate.Status = domain.CertUnknown
	}
	return monitorRow{
		Name:               m.Name,
		URL:                m.URL,
		Favicon:            m.Favicon,
		UptimeCheckEnabled: m.UptimeCheckEnabled,
		CertCheckEnabled:   m.CertCheckEnabled,
		IntervalMinutes:    m.IntervalMinutes,
		Visibility:         string(m.Visibility),
		StatusPageIDs:      m.StatusPageIDs,
		Status:             string(m.Live.Status),
		State:              string(m.Live.State),
		FailureStreak:      m.Live.FailureStreak,
		LastFailureReason:  m.Live.LastFailureReason,
		LastCheckAt:        timePtr(m.Live.LastCheck),
		PendingSince:       timePtr(m.Live.PendingSince),
		CertStatus:         string(m.Certificate.Status),
		CreatedAt:          m.CreatedAt,
	}
}

func (r incidentRow) toDomain() domain.Incident {
	return domain.Incident{
		ID:                  r.ID,
		MonitorID:           domain.MonitorID(r.MonitorID),
		Type:                domain.IncidentType(r.Type),
		StartedAt:           r.StartedAt.UTC(),
		EndedAt:             r.EndedAt,
		DurationMinutes:     r.DurationMinutes,
		Reason:              r.Reason,
		ResponseTimeMS:      r.ResponseTimeMS,
		StatusCode:          r.StatusCode,
		AlertSent:           r.AlertSent,
		FailureCountAtAlert: r.FailureCountAtAlert,
	}
}

func fromIncident(i domain.Incident) incidentRow {
	return incidentRow{
		MonitorID:      int64(i.MonitorID),
		Type:           string(i.Type),
		StartedAt:      i.StartedAt.UTC(),
		EndedAt:        i.EndedAt,
		Reason:         i.Reason,
		ResponseTimeMS: i.ResponseTimeMS,
		StatusCode:     i.StatusCode,
	}
}

func (r dailyRow) toDomain() domain.UptimeDaily {
	return domain.UptimeDaily{
		MonitorID:        domain.MonitorID(r.MonitorID),
		Date:             r.Date,
		TotalChecks:      r.TotalChecks,
		SuccessCount:     r.SuccessCount,
		FailedCount:      r.FailedCount,
		UptimePercentage: r.UptimePercentage,
		AvgResponseMS:    r.AvgResponseMS,
		MinResponseMS:    r.MinResponseMS,
		MaxResponseMS:    r.MaxResponseMS,
	}
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
