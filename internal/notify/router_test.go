package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimecore/internal/domain"
)

type fakeSubs []domain.Subscriber

func (f fakeSubs) ActiveSubscribers(context.Context, domain.MonitorID) ([]domain.Subscriber, error) {
	return f, nil
}

// recorder counts sends per destination.
type recorder struct {
	mu   sync.Mutex
	sent map[string]int
	err  error
}

func (r *recorder) Send(_ context.Context, dest string, _ domain.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[string]int)
	}
	r.sent[dest]++
	return r.err
}

func (r *recorder) count(dest string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[dest]
}

func twoSubscribers() fakeSubs {
	return fakeSubs{
		{UserID: 1, Channels: []domain.NotificationChannel{
			{ID: 10, Type: domain.ChannelTelegram, Destination: "chat-1", Enabled: true},
			{ID: 11, Type: domain.ChannelSlack, Destination: "hook-1", Enabled: true},
			{ID: 12, Type: domain.ChannelEmail, Destination: "off@example.com", Enabled: false},
		}},
		{UserID: 2, Channels: []domain.NotificationChannel{
			{ID: 20, Type: domain.ChannelEmail, Destination: "two@example.com", Enabled: true},
			{ID: 21, Type: "pager", Destination: "x", Enabled: true},
		}},
	}
}

func newTestRouter(subs Subscribers, b Backoff) (*Router, *recorder, *recorder, *recorder) {
	r := NewRouter(subs, b, Options{}, zap.NewNop())
	tg, sl, ml := &recorder{}, &recorder{}, &recorder{}
	r.Register(domain.ChannelTelegram, tg)
	r.Register(domain.ChannelSlack, sl)
	r.Register(domain.ChannelEmail, ml)
	return r, tg, sl, ml
}

func TestRouter_DeliversOncePerEnabledChannel(t *testing.T) {
	r, tg, sl, ml := newTestRouter(twoSubscribers(), nil)

	sum, err := r.Deliver(context.Background(), downPayload)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if tg.count("chat-1") != 1 || sl.count("hook-1") != 1 || ml.count("two@example.com") != 1 {
		t.Fatalf("unexpected sends tg=%v sl=%v ml=%v", tg.sent, sl.sent, ml.sent)
	}
	if ml.count("off@example.com") != 0 {
		t.Fatalf("disabled channel must not be used")
	}
	if sum.Sent != 3 || sum.Skipped != 1 {
		t.Fatalf("want 3 sent / 1 skipped, got %+v", sum)
	}
}

func TestRouter_BackoffSuppressesOnlyThatChannel(t *testing.T) {
	b := NewMemoryBackoff()
	_ = b.Set(context.Background(), "telegram:10", time.Now().Add(time.Minute))
	r, tg, sl, ml := newTestRouter(twoSubscribers(), b)

	sum, err := r.Deliver(context.Background(), downPayload)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if tg.count("chat-1") != 0 {
		t.Fatalf("telegram in backoff must not be attempted")
	}
	if sl.count("hook-1") != 1 || ml.count("two@example.com") != 1 {
		t.Fatalf("other channels must still send: sl=%v ml=%v", sl.sent, ml.sent)
	}
	if sum.Suppressed != 1 {
		t.Fatalf("want 1 suppressed, got %+v", sum)
	}
}

func TestRouter_RateLimitStartsBackoffWithoutError(t *testing.T) {
	b := NewMemoryBackoff()
	r, tg, _, _ := newTestRouter(twoSubscribers(), b)
	tg.err = &RateLimitedError{RetryAfter: 5 * time.Second}

	if _, err := r.Deliver(context.Background(), downPayload); err != nil {
		t.Fatalf("rate limit must not surface: %v", err)
	}
	until, _ := b.Until(context.Background(), "telegram:10")
	if until.IsZero() {
		t.Fatalf("want backoff recorded")
	}

	_, _ = r.Deliver(context.Background(), downPayload)
	if tg.count("chat-1") != 1 {
		t.Fatalf("want no second telegram attempt, got %d", tg.count("chat-1"))
	}
}

func TestRouter_DefaultBackoffWhenProviderGivesNone(t *testing.T) {
	b := NewMemoryBackoff()
	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	r, tg, _, _ := newTestRouter(twoSubscribers(), b)
	r.now = b.now
	tg.err = &RateLimitedError{}

	_, _ = r.Deliver(context.Background(), downPayload)
	until, _ := b.Until(context.Background(), "telegram:10")
	if !until.Equal(now.Add(time.Minute)) {
		t.Fatalf("want %s, got %s", now.Add(time.Minute), until)
	}
}

func TestRouter_PanickingSenderIsIsolated(t *testing.T) {
	r, _, sl, ml := newTestRouter(twoSubscribers(), nil)
	r.Register(domain.ChannelTelegram, SenderFunc(func(context.Context, string, domain.Payload) error {
		panic("boom")
	}))

	sum, err := r.Deliver(context.Background(), downPayload)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if sl.count("hook-1") != 1 || ml.count("two@example.com") != 1 {
		t.Fatalf("siblings must still send")
	}
	if sum.Failed != 1 {
		t.Fatalf("want 1 failed, got %+v", sum)
	}
}

func TestRouter_TransportErrorIsDropped(t *testing.T) {
	r, _, sl, _ := newTestRouter(twoSubscribers(), nil)
	sl.err = errors.New("connection reset")

	sum, err := r.Deliver(context.Background(), downPayload)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if sum.Failed != 1 || sum.Sent != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestRouter_DispatchAsyncAndDropsWhenFull(t *testing.T) {
	r := NewRouter(twoSubscribers(), nil, Options{QueueSize: 1, Workers: 1}, zap.NewNop())
	sl := &recorder{}
	r.Register(domain.ChannelSlack, sl)

	// not started yet: the second payload cannot fit
	if !r.Dispatch(downPayload) {
		t.Fatalf("first dispatch should be queued")
	}
	if r.Dispatch(downPayload) {
		t.Fatalf("second dispatch should be dropped")
	}

	var (
		mu      sync.Mutex
		results []Result
	)
	r.OnResult(func(_ domain.ChannelType, res Result) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	})
	r.Start(context.Background())
	r.Stop()

	if sl.count("hook-1") != 1 {
		t.Fatalf("want queued payload delivered once, got %d", sl.count("hook-1"))
	}
	if r.Dispatch(downPayload) {
		t.Fatalf("dispatch after Stop must be refused")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(results) != 4 {
		t.Fatalf("want 4 channel results, got %d", len(results))
	}
}
