package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hamed0406/uptimecore/internal/domain"
)

// Result labels the outcome of one channel send.
type Result string

const (
	ResultSent        Result = "sent"
	ResultFailed      Result = "failed"
	ResultRateLimited Result = "rate_limited"
	ResultSuppressed  Result = "suppressed"
	ResultSkipped     Result = "skipped"
)

// Subscribers resolves who to notify for a monitor.
type Subscribers interface {
	ActiveSubscribers(ctx context.Context, id domain.MonitorID) ([]domain.Subscriber, error)
}

type Options struct {
	QueueSize       int
	Workers         int
	SendTimeout     time.Duration
	DefaultBackoff  time.Duration
	PerTransportRPS float64
}

// Summary counts channel results of one Deliver call.
type Summary struct {
	Attempted  int
	Sent       int
	Failed     int
	Suppressed int
	Skipped    int
}

type Router struct {
	subs    Subscribers
	backoff Backoff
	opt     Options
	log     *zap.Logger
	now     func() time.Time

	senders  map[domain.ChannelType]Sender
	limiters map[domain.ChannelType]*rate.Limiter
	observe  func(domain.ChannelType, Result)

	mu      sync.RWMutex
	stopped bool
	queue   chan job
	wg      sync.WaitGroup
}

func NewRouter(subs Subscribers, backoff Backoff, opt Options, log *zap.Logger) *Router {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 256
	}
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.SendTimeout <= 0 {
		opt.SendTimeout = 15 * time.Second
	}
	if opt.DefaultBackoff <= 0 {
		opt.DefaultBackoff = time.Minute
	}
	if backoff == nil {
		backoff = NewMemoryBackoff()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		subs:     subs,
		backoff:  backoff,
		opt:      opt,
		log:      log,
		now:      time.Now,
		senders:  make(map[domain.ChannelType]Sender),
		limiters: make(map[domain.ChannelType]*rate.Limiter),
		queue:    make(chan job, opt.QueueSize),
	}
}

// Register maps a channel type to its transport. Call before Start.
func (r *Router) Register(t domain.ChannelType, s Sender) {
	r.senders[t] = s
	if r.opt.PerTransportRPS > 0 {
		burst := int(r.opt.PerTransportRPS)
		if burst < 1 {
			burst = 1
		}
		r.limiters[t] = rate.NewLimiter(rate.Limit(r.opt.PerTransportRPS), burst)
	}
}

// OnResult installs a hook called once per channel send attempt.
func (r *Router) OnResult(fn func(domain.ChannelType, Result)) { r.observe = fn }

// Start runs the dispatch workers until Stop.
func (r *Router) Start(ctx context.Context) {
	for i := 0; i < r.opt.Workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for j := range r.queue {
				sum, err := r.Deliver(ctx, j.p)
				if err != nil {
					r.log.Warn("notify_deliver_failed", zap.Int64("monitor_id", int64(j.p.MonitorID)), zap.Error(err))
				}
				if j.done != nil {
					j.done(sum, err)
				}
			}
		}()
	}
}

// Stop drains the queue and waits for in-flight deliveries.
func (r *Router) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

type job struct {
	p    domain.Payload
	done func(Summary, error)
}

// Dispatch enqueues p without blocking. It reports false when the queue is
// full or the router is stopped; the notification is then dropped.
func (r *Router) Dispatch(p domain.Payload) bool {
	return r.DispatchThen(p, nil)
}

// DispatchThen is Dispatch with a hook run by the worker once p has been
// delivered. done is not called for a dropped payload.
func (r *Router) DispatchThen(p domain.Payload, done func(Summary, error)) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return false
	}
	select {
	case r.queue <- job{p: p, done: done}:
		return true
	default:
		r.log.Warn("notify_queue_full", zap.Int64("monitor_id", int64(p.MonitorID)), zap.String("status", string(p.Status)))
		return false
	}
}

type target struct {
	user int64
	ch   domain.NotificationChannel
}

// Deliver sends p to every enabled channel of every active subscriber. Each
// channel is isolated: its failure never affects the others and is not
// returned. Only resolving subscribers can fail the call.
func (r *Router) Deliver(ctx context.Context, p domain.Payload) (Summary, error) {
	subs, err := r.subs.ActiveSubscribers(ctx, p.MonitorID)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve subscribers: %w", err)
	}

	var targets []target
	for _, s := range subs {
		for _, ch := range s.Channels {
			if ch.Enabled {
				targets = append(targets, target{user: s.UserID, ch: ch})
			}
		}
	}

	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	for i, tg := range targets {
		i, tg := i, tg
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.sendOne(ctx, tg, p)
		}()
	}
	wg.Wait()

	sum := Summary{Attempted: len(targets)}
	for i, res := range results {
		switch res {
		case ResultSent:
			sum.Sent++
		case ResultFailed, ResultRateLimited:
			sum.Failed++
		case ResultSuppressed:
			sum.Suppressed++
		case ResultSkipped:
			sum.Skipped++
		}
		if r.observe != nil {
			r.observe(targets[i].ch.Type, res)
		}
	}
	r.log.Info("notify_delivered",
		zap.Int64("monitor_id", int64(p.MonitorID)),
		zap.String("status", string(p.Status)),
		zap.Int("sent", sum.Sent),
		zap.Int("failed", sum.Failed),
		zap.Int("suppressed", sum.Suppressed),
		zap.Int("skipped", sum.Skipped))
	return sum, nil
}

func backoffKey(ch domain.NotificationChannel) string {
	return fmt.Sprintf("%s:%d", ch.Type, ch.ID)
}

func (r *Router) sendOne(ctx context.Context, tg target, p domain.Payload) (res Result) {
	ch := tg.ch
	log := r.log.With(
		zap.Int64("monitor_id", int64(p.MonitorID)),
		zap.Int64("user_id", tg.user),
		zap.Int64("channel_id", ch.ID),
		zap.String("channel", string(ch.Type)))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("notify_sender_panic", zap.Any("panic", rec))
			res = ResultFailed
		}
	}()

	sender, ok := r.senders[ch.Type]
	if !ok {
		log.Warn("notify_unknown_channel")
		return ResultSkipped
	}

	key := backoffKey(ch)
	until, err := r.backoff.Until(ctx, key)
	if err != nil {
		log.Warn("notify_backoff_read_failed", zap.Error(err))
	}
	if until.After(r.now()) {
		log.Info("notify_suppressed_backoff", zap.Time("until", until))
		return ResultSuppressed
	}

	sctx, cancel := context.WithTimeout(ctx, r.opt.SendTimeout)
	defer cancel()
	if lim := r.limiters[ch.Type]; lim != nil {
		if err := lim.Wait(sctx); err != nil {
			log.Warn("notify_send_failed", zap.Error(err))
			return ResultFailed
		}
	}

	err = sender.Send(sctx, ch.Destination, p)
	var rl *RateLimitedError
	switch {
	case err == nil:
		log.Debug("notify_sent")
		return ResultSent
	case errors.As(err, &rl):
		wait := rl.RetryAfter
		if wait <= 0 {
			wait = r.opt.DefaultBackoff
		}
		if serr := r.backoff.Set(ctx, key, r.now().Add(wait)); serr != nil {
			log.Warn("notify_backoff_write_failed", zap.Error(serr))
		}
		log.Warn("notify_rate_limited", zap.Duration("backoff", wait))
		return ResultRateLimited
	case errors.Is(err, ErrChannelDisabled):
		log.Warn("notify_channel_disabled", zap.Error(err))
		return ResultSkipped
	default:
		log.Warn("notify_send_failed", zap.Error(err))
		return ResultFailed
	}
}
