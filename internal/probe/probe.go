package probe

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
)

// ReasonTimeout is the failure reason recorded when a probe exceeds its
// deadline.
const ReasonTimeout = "timeout"

// Result is the outcome of a single probe.
//
// StatusCode and ResponseTimeMS are nil when the transport could not supply
// them; they are never estimated.
type Result struct {
	Success        bool
	StatusCode     *int
	ResponseTimeMS *int
	FailureReason  string
}

// Prober performs one availability probe for a URL.
type Prober interface {
	Probe(ctx context.Context, url string) Result
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, url string) Result

func (f ProberFunc) Probe(ctx context.Context, url string) Result { return f(ctx, url) }

// Run probes url with a bounded timeout and stamps the outcome with the time
// the probe started. A prober that ignores its context still cannot hold the
// caller past the deadline.
func Run(ctx context.Context, p Prober, url string, timeout time.Duration, now func() time.Time) domain.Outcome {
	if now == nil {
		now = time.Now
	}
	started := now().UTC()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() { done <- p.Probe(cctx, url) }()

	var r Result
	select {
	case r = <-done:
	case <-cctx.Done():
		r = Result{FailureReason: ReasonTimeout}
		if !errors.Is(cctx.Err(), context.DeadlineExceeded) {
			r.FailureReason = cctx.Err().Error()
		}
	}
	if !r.Success && r.FailureReason == "" {
		r.FailureReason = "unknown failure"
	}
	return domain.Outcome{
		Success:        r.Success,
		StatusCode:     r.StatusCode,
		ResponseTimeMS: r.ResponseTimeMS,
		FailureReason:  r.FailureReason,
		CheckedAt:      started,
	}
}
