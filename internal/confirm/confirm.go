// Package confirm holds the failure-confirmation state machine. It is pure:
// callers load the live state, call Evaluate and persist Decision.Next inside
// the monitor's critical section.
package confirm

import (
	"fmt"
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
)

type Policy struct {
	Enabled   bool
	Delay     time.Duration
	Threshold int // consecutive failing probes needed to confirm; >= 2 when Enabled
}

// Recheck asks the caller to run one more probe after Delay. Key is stable
// for the failure that triggered it so duplicate scheduling collapses.
type Recheck struct {
	Key   string
	Delay time.Duration
}

type Decision struct {
	Stale   bool
	Next    domain.LiveState
	Event   *domain.Event
	Recheck *Recheck
}

// Key is the idempotency key of a delayed re-check.
func Key(id domain.MonitorID, epoch time.Time, streak int) string {
	return fmt.Sprintf("monitor:%d:confirm:%d:%d", id, epoch.Unix(), streak)
}

func Evaluate(p Policy, id domain.MonitorID, live domain.LiveState, o domain.Outcome) Decision {
	if !live.LastCheck.IsZero() && o.CheckedAt.Before(live.LastCheck) {
		return Decision{Stale: true, Next: live}
	}
	threshold := p.Threshold
	if threshold < 2 {
		threshold = 2
	}

	old := live.ConfirmedStatus()
	next := live
	next.LastCheck = o.CheckedAt

	if o.Success {
		next.Status = domain.StatusUp
		next.State = domain.StateHealthy
		next.FailureStreak = 0
		next.PendingSince = time.Time{}

		kind := domain.EventSuccess
		if live.State == domain.StateDown {
			kind = domain.EventRecovery
		}
		return Decision{Next: next, Event: &domain.Event{
			Kind:      kind,
			MonitorID: id,
			Outcome:   o,
			OldStatus: old,
			NewStatus: domain.StatusUp,
		}}
	}

	next.Status = domain.StatusDown
	next.FailureStreak = live.FailureStreak + 1
	next.LastFailureReason = o.FailureReason

	failure := &domain.Event{
		Kind:      domain.EventFailure,
		MonitorID: id,
		Outcome:   o,
		Reason:    o.FailureReason,
		OldStatus: old,
		NewStatus: domain.StatusDown,
		Streak:    next.FailureStreak,
	}

	switch {
	case live.State == domain.StateDown:
		// already confirmed: no re-delay
		return Decision{Next: next, Event: failure}
	case !p.Enabled || next.FailureStreak >= threshold:
		next.State = domain.StateDown
		next.PendingSince = time.Time{}
		return Decision{Next: next, Event: failure}
	default:
		next.State = domain.StatePendingConfirmation
		if live.State != domain.StatePendingConfirmation || live.PendingSince.IsZero() {
			next.PendingSince = o.CheckedAt
		}
		return Decision{Next: next, Recheck: &Recheck{
			Key:   Key(id, next.PendingSince, next.FailureStreak),
			Delay: p.Delay,
		}}
	}
}
