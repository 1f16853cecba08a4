// Package history turns confirmed events into write-once history records.
package history

import (
	"regexp"
	"strconv"

	"github.com/hamed0406/uptimecore/internal/domain"
)

var leadingCode = regexp.MustCompile(`^\s*([1-5][0-9]{2})\b`)

// StatusCode derives the HTTP status code stored for an outcome. A code
// reported by the prober wins; otherwise a failure reason that starts with a
// 3-digit code is parsed, any other failure is a connection failure (0), and
// a success without a code is recorded as 200.
func StatusCode(o domain.Outcome) *int {
	if o.StatusCode != nil {
		c := *o.StatusCode
		return &c
	}
	if o.Success {
		c := 200
		return &c
	}
	if m := leadingCode.FindStringSubmatch(o.FailureReason); m != nil {
		c, _ := strconv.Atoi(m[1])
		return &c
	}
	c := 0
	return &c
}

// Record builds the history row for a propagated event.
func Record(e domain.Event) domain.HistoryRecord {
	rec := domain.HistoryRecord{
		MonitorID:      e.MonitorID,
		Status:         domain.StatusUp,
		ResponseTimeMS: copyInt(e.Outcome.ResponseTimeMS),
		StatusCode:     StatusCode(e.Outcome),
		CheckedAt:      e.Outcome.CheckedAt,
	}
	switch e.Kind {
	case domain.EventFailure:
		rec.Status = domain.StatusDown
		rec.Message = e.Reason
	case domain.EventRecovery:
		rec.Message = "recovered"
	case domain.EventSuccess:
	}
	return rec
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
