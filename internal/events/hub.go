// Package events fans registry notifications out to live subscribers and
// streams them to websocket clients.
package events

import (
	"sync"

	"pubreg.chain/pubreg/internal/types"
)

const (
	defaultHistory    = 50
	subscriberBacklog = 16
)

// Filter selects notifications for a subscriber. The zero Filter matches
// everything.
type Filter struct {
	Author types.Address
}

func (f Filter) match(n types.Notification) bool {
	return f.Author.IsZero() || f.Author == n.Author
}

type subscriber struct {
	ch     chan types.Notification
	filter Filter
}

// Hub broadcasts notifications to subscribers. Slow subscribers miss
// notifications rather than block the publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	history []types.Notification
	maxHist int
}

// NewHub returns a hub remembering the last history notifications for late
// subscribers.
func NewHub(history int) *Hub {
	if history <= 0 {
		history = defaultHistory
	}
	return &Hub{subs: make(map[*subscriber]struct{}), maxHist: history}
}

// Publish implements ledger.EventSink.
func (h *Hub) Publish(n types.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, n)
	if len(h.history) > h.maxHist {
		h.history = h.history[len(h.history)-h.maxHist:]
	}
	for s := range h.subs {
		if !s.filter.match(n) {
			continue
		}
		select {
		case s.ch <- n:
		default:
			// subscriber is slow, skip
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (h *Hub) Subscribe(f Filter) (<-chan types.Notification, func()) {
	_, ch, cancel := h.SubscribeWithRecent(f, 0)
	return ch, cancel
}

// SubscribeWithRecent registers a subscriber and returns up to n recent
// notifications matching f, taken under the same lock. Every notification
// lands in exactly one of the replay and the channel.
func (h *Hub) SubscribeWithRecent(f Filter, n int) ([]types.Notification, <-chan types.Notification, func()) {
	s := &subscriber{ch: make(chan types.Notification, subscriberBacklog), filter: f}
	h.mu.Lock()
	replay := h.recentLocked(f, n)
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return replay, s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

// Recent returns up to n recent notifications matching f, oldest first.
func (h *Hub) Recent(f Filter, n int) []types.Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.recentLocked(f, n)
}

func (h *Hub) recentLocked(f Filter, n int) []types.Notification {
	var out []types.Notification
	for i := len(h.history) - 1; i >= 0 && len(out) < n; i-- {
		if f.match(h.history[i]) {
			out = append(out, h.history[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
