// Package auditfeed fans committed audit events out to live subscribers.
package auditfeed

import (
	"sync"

	"github.com/zhouzirui/drafting/backend/internal/model/audit"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// Hub broadcasts events. A subscriber whose queue is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan audit.Event
	nextID uint64
	buffer int
	closed bool
	logger logging.Logger
}

// NewHub creates a hub with buffer-sized subscriber queues.
func NewHub(buffer int, logger logging.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Hub{subs: make(map[uint64]chan audit.Event), buffer: buffer, logger: logger}
}

// Subscribe registers a listener. The returned cancel func is idempotent and
// closes the channel.
func (h *Hub) Subscribe() (<-chan audit.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan audit.Event, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	h.nextID++
	id := h.nextID
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers ev to every subscriber without blocking. It has the
// store.AuditObserver signature.
func (h *Hub) Publish(ev audit.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.WithFields(logging.Fields{
				"subscriber": id,
				"action":     ev.Action,
			}).Warn("audit feed subscriber is slow, dropping event")
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects all subscribers. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
