// Package events broadcasts status changes of public monitors to external
// consumers. Delivery is best effort: slow subscribers lose events and only
// a capped window of recent changes is retained.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimecore/internal/domain"
)

type Hub struct {
	log *zap.Logger

	mu      sync.RWMutex
	recent  []domain.StatusChange // ring buffer
	next    int
	full    bool
	clients map[string]chan domain.StatusChange
	onDrop  func()
}

func NewHub(capacity int, log *zap.Logger) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:     log,
		recent:  make([]domain.StatusChange, capacity),
		clients: make(map[string]chan domain.StatusChange),
	}
}

// OnDrop installs a hook called for every event a subscriber missed.
func (h *Hub) OnDrop(fn func()) { h.onDrop = fn }

// Publish records and fans out a confirmed transition. Private monitors and
// non-transitions are ignored.
func (h *Hub) Publish(m domain.Monitor, old, cur domain.Status, at time.Time) (domain.StatusChange, bool) {
	if !m.Public() || old == cur {
		return domain.StatusChange{}, false
	}
	ids := m.StatusPageIDs
	if ids == nil {
		ids = []int64{}
	}
	ev := domain.StatusChange{
		ID:            uuid.NewString(),
		MonitorID:     m.ID,
		MonitorName:   m.Name,
		OldStatus:     old,
		NewStatus:     cur,
		ChangedAt:     at.UTC(),
		Favicon:       m.Favicon,
		StatusPageIDs: append([]int64(nil), ids...),
	}

	h.mu.Lock()
	h.recent[h.next] = ev
	h.next = (h.next + 1) % len(h.recent)
	if h.next == 0 {
		h.full = true
	}
	dropped := 0
	for id, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			dropped++
			h.log.Warn("status_change_dropped", zap.String("client_id", id))
		}
	}
	h.mu.Unlock()

	if h.onDrop != nil {
		for i := 0; i < dropped; i++ {
			h.onDrop()
		}
	}
	h.log.Info("status_change",
		zap.Int64("monitor_id", int64(m.ID)),
		zap.String("old_status", string(old)),
		zap.String("new_status", string(cur)))
	return ev, true
}

// Recent returns up to limit retained changes, newest first. A limit <= 0
// returns all of them.
func (h *Hub) Recent(limit int) []domain.StatusChange {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.next
	if h.full {
		n = len(h.recent)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.StatusChange, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + len(h.recent)) % len(h.recent)
		out = append(out, h.recent[idx])
	}
	return out
}

// Subscribe registers a live listener. The returned cancel func must be
// called once the listener is done; it closes the channel.
func (h *Hub) Subscribe(buffer int) (string, <-chan domain.StatusChange, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	id := uuid.NewString()
	ch := make(chan domain.StatusChange, buffer)

	h.mu.Lock()
	h.clients[id] = ch
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Info("sse_client_connected", zap.String("client_id", id), zap.Int("total", total))

	var once sync.Once
	return id, ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, id)
			close(ch)
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("sse_client_disconnected", zap.String("client_id", id), zap.Int("total", total))
		})
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
