package notification

import (
	"context"
	"sync"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
)

const (
	defaultHistorySize      = 50
	defaultSubscriberBuffer = 16
)

// HubConfig holds hub configuration
type HubConfig struct {
	HistorySize      int
	SubscriberBuffer int
	Logger           *observability.Logger
	Metrics          *observability.Metrics
}

// Hub fans notifications out to in-process subscribers (the WebSocket
// connections) and keeps a bounded history for late joiners
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Notification]struct{}
	history     []Notification
	historySize int
	buffer      int

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewHub creates a Hub
func NewHub(cfg HubConfig) *Hub {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaultSubscriberBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	return &Hub{
		subscribers: make(map[chan Notification]struct{}),
		historySize: cfg.HistorySize,
		buffer:      cfg.SubscriberBuffer,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// Notify records n and delivers it to every subscriber. A subscriber whose
// buffer is full misses n rather than blocking the sender.
func (h *Hub) Notify(ctx context.Context, n Notification) error {
	h.mu.Lock()
	h.history = append(h.history, n)
	if over := len(h.history) - h.historySize; over > 0 {
		h.history = append([]Notification(nil), h.history[over:]...)
	}
	for ch := range h.subscribers {
		select {
		case ch <- n:
		default:
			h.logger.LogWarn(ctx, "dropping notification for slow subscriber", "notification_id", n.ID)
		}
	}
	h.mu.Unlock()

	h.metrics.RecordNotification(ctx, string(n.Level), "hub")
	return nil
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (h *Hub) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, h.buffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns up to limit of the newest notifications, oldest first
func (h *Hub) Recent(limit int) []Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := 0
	if limit > 0 && len(h.history) > limit {
		start = len(h.history) - limit
	}
	return append([]Notification(nil), h.history[start:]...)
}

// SubscriberCount returns the number of live subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
