package notify

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func TestMemoryBackoff_ExpiresAndKeepsLongest(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	b := NewMemoryBackoff()
	b.now = func() time.Time { return now }

	_ = b.Set(ctx, "k", now.Add(2*time.Minute))
	_ = b.Set(ctx, "k", now.Add(time.Minute))
	if got, _ := b.Until(ctx, "k"); !got.Equal(now.Add(2 * time.Minute)) {
		t.Fatalf("want longest backoff kept, got %s", got)
	}

	now = now.Add(3 * time.Minute)
	if got, _ := b.Until(ctx, "k"); !got.IsZero() {
		t.Fatalf("want expired backoff, got %s", got)
	}
}

func TestRedisBackoff_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR empty")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	b := NewRedisBackoff(client)
	key := fmt.Sprintf("test:%d", time.Now().UnixNano())

	if got, err := b.Until(ctx, key); err != nil || !got.IsZero() {
		t.Fatalf("want empty backoff, got %s err=%v", got, err)
	}
	until := time.Now().Add(10 * time.Second).Truncate(time.Millisecond)
	if err := b.Set(ctx, key, until); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := b.Until(ctx, key)
	if err != nil || !got.Equal(until) {
		t.Fatalf("want %s, got %s err=%v", until, got, err)
	}
}
