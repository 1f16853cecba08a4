package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deferrer runs delayed re-checks. Defer schedules fn once after delay and
// reports false, without scheduling, when key is already pending.
type Deferrer interface {
	Defer(key string, delay time.Duration, fn func()) (bool, error)
}

// Claimer lets several processes agree on who owns a re-check key.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisClaimer claims keys with SET NX and a TTL.
type RedisClaimer struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

func NewRedisClaimer(client redis.UniversalClient) *RedisClaimer {
	return &RedisClaimer{client: client, prefix: "uptimecore:", timeout: 250 * time.Millisecond}
}

func (r *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.SetNX(ctx, r.prefix+key, "1", ttl).Result()
}

// GocronDeferrer schedules re-checks as one-time gocron jobs.
type GocronDeferrer struct {
	cron  gocron.Scheduler
	claim Claimer
	log   *zap.Logger
	now   func() time.Time

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewGocronDeferrer builds a deferrer on cron. claim may be nil for a
// single process.
func NewGocronDeferrer(cron gocron.Scheduler, claim Claimer, log *zap.Logger) *GocronDeferrer {
	return &GocronDeferrer{
		cron:    cron,
		claim:   claim,
		log:     log,
		now:     time.Now,
		pending: make(map[string]struct{}),
	}
}

func (d *GocronDeferrer) Defer(key string, delay time.Duration, fn func()) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[key]; ok {
		return false, nil
	}
	if d.claim != nil {
		ok, err := d.claim.Claim(context.Background(), key, delay+time.Minute)
		switch {
		case err != nil:
			// redis down: keep confirming locally
			d.log.Warn("confirmation_claim_failed", zap.String("key", key), zap.Error(err))
		case !ok:
			return false, nil
		}
	}

	d.pending[key] = struct{}{}
	_, err := d.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(d.now().Add(delay))),
		gocron.NewTask(func() {
			d.mu.Lock()
			delete(d.pending, key)
			d.mu.Unlock()
			fn()
		}),
		gocron.WithName(key),
	)
	if err != nil {
		delete(d.pending, key)
		return false, fmt.Errorf("schedule re-check: %w", err)
	}
	return true, nil
}

// Pending returns how many re-checks are waiting to fire.
func (d *GocronDeferrer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
