package domain

import "time"

// HistoryRecord is write-once.
type HistoryRecord struct {
	ID             int64     `json:"id"`
	MonitorID      MonitorID `json:"monitor_id"`
	Status         Status    `json:"status"`
	ResponseTimeMS *int      `json:"response_time_ms"`
	StatusCode     *int      `json:"status_code"`
	Message        string    `json:"message,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}

type IncidentType string

const (
	IncidentDown      IncidentType = "down"
	IncidentDegraded  IncidentType = "degraded"
	IncidentRecovered IncidentType = "recovered"
)

type Incident struct {
	ID                  int64        `json:"id"`
	MonitorID           MonitorID    `json:"monitor_id"`
	Type                IncidentType `json:"type"`
	StartedAt           time.Time    `json:"started_at"`
	EndedAt             *time.Time   `json:"ended_at"`
	DurationMinutes     *int         `json:"duration_minutes"`
	Reason              string       `json:"reason,omitempty"`
	ResponseTimeMS      *int         `json:"response_time_ms"`
	StatusCode          *int         `json:"status_code"`
	AlertSent           bool         `json:"alert_sent"`
	FailureCountAtAlert int          `json:"failure_count_at_alert"`
}

func (i Incident) Open() bool { return i.EndedAt == nil }

// DurationMinutes is end minus start in whole minutes.
func DurationMinutes(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

type PerformanceHourly struct {
	MonitorID        MonitorID `json:"monitor_id"`
	Hour             time.Time `json:"hour"`
	SuccessCount     int       `json:"success_count"`
	FailureCount     int       `json:"failure_count"`
	AvgResponseMS    *float64  `json:"avg_response_ms"`
	P95ResponseMS    *int      `json:"p95_response_ms"`
	P99ResponseMS    *int      `json:"p99_response_ms"`
	UptimePercentage float64   `json:"uptime_percentage"`
}

// UptimeDaily is keyed by (MonitorID, Date). Date is YYYY-MM-DD in UTC.
type UptimeDaily struct {
	MonitorID        MonitorID `json:"monitor_id"`
	Date             string    `json:"date"`
	TotalChecks      int       `json:"total_checks"`
	SuccessCount     int       `json:"success_count"`
	FailedCount      int       `json:"failed_count"`
	UptimePercentage float64   `json:"uptime_percentage"`
	AvgResponseMS    *float64  `json:"avg_response_ms"`
	MinResponseMS    *int      `json:"min_response_ms"`
	MaxResponseMS    *int      `json:"max_response_ms"`
}

const DateLayout = "2006-01-02"
