package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Subscription receives events accepted by its filter.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	filter func(Event) bool
}

// Hub fans events out to live subscribers. Slow subscribers lose events
// instead of blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	dropped uint64
}

func NewHub() *Hub {
	return &Hub{subs: map[*Subscription]struct{}{}}
}

// Subscribe registers a subscriber. A nil filter accepts every event.
func (h *Hub) Subscribe(buf int, filter func(Event) bool) *Subscription {
	if buf <= 0 {
		buf = 32
	}
	ch := make(chan Event, buf)
	sub := &Subscription{C: ch, ch: ch, filter: filter}
	h.mu.Lock()
	if h.subs == nil {
		h.subs = map[*Subscription]struct{}{}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	if h == nil || sub == nil {
		return
	}
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Write(ctx context.Context, ev Event) error {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			atomic.AddUint64(&h.dropped, 1)
		}
	}
	return nil
}

func (h *Hub) Dropped() uint64 {
	return atomic.LoadUint64(&h.dropped)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
