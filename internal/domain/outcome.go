package domain

import "time"

// Outcome is one raw probe result for a monitor.
type Outcome struct {
	Success        bool
	StatusCode     *int
	ResponseTimeMS *int
	FailureReason  string
	CheckedAt      time.Time
}

// EventKind tags a propagated, confirmed event.
type EventKind int

const (
	EventSuccess EventKind = iota + 1
	EventFailure
	EventRecovery
)

func (k EventKind) String() string {
	switch k {
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	case EventRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// Event is what survives the confirmation protocol. Reason is only set for
// EventFailure.
type Event struct {
	Kind      EventKind
	MonitorID MonitorID
	Outcome   Outcome
	Reason    string
	OldStatus Status
	NewStatus Status
	Streak    int
}

// Transition reports whether the confirmed status changed.
func (e Event) Transition() bool { return e.OldStatus != e.NewStatus }

// StatusChange is broadcast to external consumers for public monitors.
type StatusChange struct {
	ID            string    `json:"id"`
	MonitorID     MonitorID `json:"monitor_id"`
	MonitorName   string    `json:"monitor_name"`
	OldStatus     Status    `json:"old_status"`
	NewStatus     Status    `json:"new_status"`
	ChangedAt     time.Time `json:"changed_at"`
	Favicon       string    `json:"favicon"`
	StatusPageIDs []int64   `json:"status_page_ids"`
}
