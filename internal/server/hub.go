package server

import (
	"sync"

	"github.com/razfaz/razfaz/internal/logger"
	"github.com/razfaz/razfaz/internal/relay"
)

const subscriberBuffer = 64

// Hub fans relay events out to stream subscribers. It remembers the latest
// urlHashChanged event and replays it to each new subscriber.
type Hub struct {
	mu       sync.Mutex
	subs     map[chan relay.Event]struct{}
	lastHash *relay.Event
	closed   bool
}

// NewHub creates an empty Hub
func NewHub() *Hub {
	return &Hub{subs: make(map[chan relay.Event]struct{})}
}

// Notify delivers ev to every subscriber. A subscriber whose buffer is full
// misses the event rather than stalling the others.
func (h *Hub) Notify(ev relay.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ev.Name == relay.EventURLHashChanged {
		last := ev
		h.lastHash = &last
	}

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			logger.IncrCounter("server.dropped_events")
			logger.Warn("subscriber too slow, dropping event", logger.Fields{"event": ev.Name})
		}
	}
	return nil
}

// Subscribe registers a subscriber. The returned channel starts with the
// latest hash event, if any, and is closed by cancel or Close.
func (h *Hub) Subscribe() (<-chan relay.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan relay.Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.lastHash != nil {
		ch <- *h.lastHash
	}
	h.subs[ch] = struct{}{}
	logger.SetGauge("server.subscribers", float64(len(h.subs)))

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
			logger.SetGauge("server.subscribers", float64(len(h.subs)))
		})
	}
	return ch, cancel
}

// Subscribers returns the number of open subscriptions
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscriptions are closed at once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
