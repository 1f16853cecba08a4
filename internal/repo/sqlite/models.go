package sqlite

import "time"

type monitorRow struct {
	ID                 int64   `gorm:"primaryKey"`
	Name               string  `gorm:"not null"`
	URL                string  `gorm:"column:url;not null;uniqueIndex"`
	Favicon            string
	UptimeCheckEnabled bool    `gorm:"index"`
	CertCheckEnabled   bool    `gorm:"column:cert_check_enabled"`
	IntervalMinutes    int     `gorm:"not null;default:5"`
	Visibility         string  `gorm:"not null"`
	StatusPageIDs      []int64 `gorm:"column:status_page_ids;serializer:json"`

	Status            string `gorm:"not null"`
	State             string `gorm:"not null"`
	FailureStreak     int    `gorm:"not null;default:0"`
	LastFailureReason string
	LastCheckAt       *time.Time `gorm:"column:last_check_at"`
	PendingSince      *time.Time `gorm:"column:pending_since"`

	CertStatus    string `gorm:"column:cert_status"`
	CertExpiresAt *time.Time
	CertIssuer    string
	CertReason    string
	CertCheckedAt *time.Time

	CreatedAt time.Time
}

func (monitorRow) TableName() string { return "monitors" }

type historyRow struct {
	ID             int64     `gorm:"primaryKey"`
	MonitorID      int64     `gorm:"not null;index:idx_history_monitor_time,priority:1"`
	Status         string    `gorm:"not null"`
	ResponseTimeMS *int      `gorm:"column:response_time_ms"`
	StatusCode     *int      `gorm:"column:status_code"`
	Message        string
	CheckedAt      time.Time `gorm:"not null;index:idx_history_monitor_time,priority:2"`
}

func (historyRow) TableName() string { return "monitor_history" }

// The one-open-incident rule is a partial unique index created in migrate.
type incidentRow struct {
	ID                  int64 `gorm:"primaryKey"`
	MonitorID           int64 `gorm:"not null;index"`
	Type                string
	StartedAt           time.Time `gorm:"not null"`
	EndedAt             *time.Time
	DurationMinutes     *int
	Reason              string
	ResponseTimeMS      *int `gorm:"column:response_time_ms"`
	StatusCode          *int
	AlertSent           bool
	FailureCountAtAlert int
}

func (incidentRow) TableName() string { return "incidents" }

type hourlyRow struct {
	ID               int64     `gorm:"primaryKey"`
	MonitorID        int64     `gorm:"not null;uniqueIndex:idx_hourly_unique,priority:1"`
	Hour             time.Time `gorm:"not null;uniqueIndex:idx_hourly_unique,priority:2"`
	SuccessCount     int
	FailureCount     int
	AvgResponseMS    *float64 `gorm:"column:avg_response_ms"`
	P95ResponseMS    *int     `gorm:"column:p95_response_ms"`
	P99ResponseMS    *int     `gorm:"column:p99_response_ms"`
	UptimePercentage float64
	UpdatedAt        time.Time
}

func (hourlyRow) TableName() string { return "performance_hourly" }

type dailyRow struct {
	ID               int64  `gorm:"primaryKey"`
	MonitorID        int64  `gorm:"not null;uniqueIndex:idx_daily_unique,priority:1"`
	Date             string `gorm:"not null;size:10;uniqueIndex:idx_daily_unique,priority:2"`
	TotalChecks      int
	SuccessCount     int
	FailedCount      int
	UptimePercentage float64
	AvgResponseMS    *float64 `gorm:"column:avg_response_ms"`
	MinResponseMS    *int     `gorm:"column:min_response_ms"`
	MaxResponseMS    *int     `gorm:"column:max_response_ms"`
	UpdatedAt        time.Time
}

func (dailyRow) TableName() string { return "uptime_daily" }

type userRow struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func (userRow) TableName() string { return "users" }

type channelRow struct {
	ID          int64             `gorm:"primaryKey"`
	UserID      int64             `gorm:"not null;index"`
	Type        string            `gorm:"not null"`
	Destination string            `gorm:"not null"`
	Enabled     bool              `gorm:"not null"`
	Metadata    map[string]string `gorm:"serializer:json"`
}

func (channelRow) TableName() string { return "notification_channels" }

type subscriptionRow struct {
	ID        int64 `gorm:"primaryKey"`
	MonitorID int64 `gorm:"not null;uniqueIndex:idx_subscription_unique,priority:1"`
	UserID    int64 `gorm:"not null;uniqueIndex:idx_subscription_unique,priority:2"`
	IsActive  bool  `gorm:"not null"`
}

func (subscriptionRow) TableName() string { return "monitor_subscriptions" }
