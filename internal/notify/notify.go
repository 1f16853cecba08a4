// Package notify routes confirmed transitions to subscriber channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
)

var ErrChannelDisabled = errors.New("channel disabled")

// Sender delivers one payload to one destination of a transport.
type Sender interface {
	Send(ctx context.Context, destination string, p domain.Payload) error
}

type SenderFunc func(ctx context.Context, destination string, p domain.Payload) error

func (f SenderFunc) Send(ctx context.Context, destination string, p domain.Payload) error {
	return f(ctx, destination, p)
}

// RateLimitedError is returned by a transport when the provider asked us to
// slow down. RetryAfter is zero when the provider did not say for how long.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	msg := "rate limited"
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

func Title(p domain.Payload) string {
	switch p.Status {
	case domain.StatusDown:
		return "Monitor down: " + p.URL
	case domain.StatusUp:
		return "Monitor recovered: " + p.URL
	default:
		return "Monitor status: " + p.URL
	}
}

func Text(p domain.Payload) string {
	return fmt.Sprintf("%s is %s\n%s", p.URL, p.Status, p.Message)
}
