package domain

import "time"

type MonitorID int64

// Status is the coarse up/down state shown for a monitor.
type Status string

const (
	StatusUnknown Status = "not-yet-checked"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ConfirmationState is the failure-confirmation state of a monitor.
type ConfirmationState string

const (
	StateHealthy             ConfirmationState = "healthy"
	StatePendingConfirmation ConfirmationState = "pending_confirmation"
	StateDown                ConfirmationState = "down"
)

// LiveState holds the fields mutated by every evaluated check.
type LiveState struct {
	Status            Status            `json:"status"`
	State             ConfirmationState `json:"state"`
	FailureStreak     int               `json:"failure_streak"`
	LastFailureReason string            `json:"last_failure_reason,omitempty"`
	LastCheck         time.Time         `json:"last_check"`
	PendingSince      time.Time         `json:"pending_since,omitempty"`
}

// ConfirmedStatus is the status as seen by incidents and subscribers. A
// failure still under confirmation does not count as down.
func (l LiveState) ConfirmedStatus() Status {
	switch {
	case l.State == StateDown:
		return StatusDown
	case l.LastCheck.IsZero():
		return StatusUnknown
	default:
		return StatusUp
	}
}

type CertificateStatus string

const (
	CertUnknown  CertificateStatus = "not-yet-checked"
	CertValid    CertificateStatus = "valid"
	CertExpiring CertificateStatus = "expiring"
	CertExpired  CertificateStatus = "expired"
	CertInvalid  CertificateStatus = "invalid"
)

type CertificateState struct {
	Status    CertificateStatus `json:"status"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Issuer    string            `json:"issuer,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

type Monitor struct {
	ID                 MonitorID        `json:"id"`
	Name               string           `json:"name"`
	URL                string           `json:"url"`
	Favicon            string           `json:"favicon,omitempty"`
	UptimeCheckEnabled bool             `json:"uptime_check_enabled"`
	CertCheckEnabled   bool             `json:"certificate_check_enabled"`
	IntervalMinutes    int              `json:"interval_minutes"`
	Visibility         Visibility       `json:"visibility"`
	Live               LiveState        `json:"live"`
	Certificate        CertificateState `json:"certificate"`
	StatusPageIDs      []int64          `json:"status_page_ids,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

func (m Monitor) Public() bool { return m.Visibility == VisibilityPublic }

// Due reports whether the monitor should be probed at now, given the
// deployment floor for check intervals.
func (m Monitor) Due(now time.Time, floor time.Duration) bool {
	if m.Live.LastCheck.IsZero() {
		return true
	}
	every := time.Duration(m.IntervalMinutes) * time.Minute
	if every < floor {
		every = floor
	}
	return now.Sub(m.Live.LastCheck) >= every
}
