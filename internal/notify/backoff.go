package notify

import (
	"context"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Backoff remembers, per channel key, until when sends are suppressed.
type Backoff interface {
	Until(ctx context.Context, key string) (time.Time, error)
	Set(ctx context.Context, key string, until time.Time) error
}

// MemoryBackoff is process-local.
type MemoryBackoff struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryBackoff() *MemoryBackoff {
	return &MemoryBackoff{until: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryBackoff) Until(_ context.Context, key string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.until[key]
	if !ok {
		return time.Time{}, nil
	}
	if !t.After(m.now()) {
		delete(m.until, key)
		return time.Time{}, nil
	}
	return t, nil
}

func (m *MemoryBackoff) Set(_ context.Context, key string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.until[key]; ok && cur.After(until) {
		return nil
	}
	m.until[key] = until
	return nil
}

// RedisBackoff shares backoff state between processes. Each key expires on
// its own when the backoff ends.
type RedisBackoff struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

func NewRedisBackoff(client redis.UniversalClient) *RedisBackoff {
	return &RedisBackoff{client: client, prefix: "uptimecore:backoff:", timeout: 250 * time.Millisecond}
}

func (r *RedisBackoff) Until(ctx context.Context, key string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

func (r *RedisBackoff) Set(ctx context.Context, key string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Set(ctx, r.prefix+key, strconv.FormatInt(until.UnixMilli(), 10), ttl).Err()
}
