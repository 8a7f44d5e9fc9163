// SPDX-License-Identifier: MIT
package event

import (
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"signalmon/internal/log"
)

// DefaultBuffer is the subscription queue depth used when Subscribe is given
// a non-positive size.
const DefaultBuffer = 256

// Hub fans events out to subscribers. Publish is non-blocking: a subscriber
// whose queue is full misses the event and the drop is counted.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	dropped atomic.Uint64
	log     *log.Logger
}

// Subscription is a registered consumer. C is closed after Cancel or when the
// hub closes.
type Subscription struct {
	C <-chan Event

	c       chan Event
	hub     *Hub
	dropped atomic.Uint64
}

// NewHub returns an open Hub. name prefixes its log lines.
func NewHub(name string) *Hub {
	return &Hub{
		subs: make(map[*Subscription]struct{}),
		log:  log.New("event").With(name),
	}
}

// Subscribe registers a consumer with a queue of buf events. Subscribing to a
// closed hub returns a subscription whose channel is already closed.
func (h *Hub) Subscribe(buf int) *Subscription {
	if buf <= 0 {
		buf = DefaultBuffer
	}
	c := make(chan Event, buf)
	s := &Subscription{C: c, c: c, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(c)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish delivers ev to every subscriber with room in its queue and reports
// whether all of them received it. Publishing on a closed hub is a no-op.
func (h *Hub) Publish(ev Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return false
	}

	delivered := true
	for s := range h.subs {
		select {
		case s.c <- ev:
		default:
			delivered = false
			n := s.dropped.Add(1)
			h.dropped.Add(1)
			if n == 1 || n%1000 == 0 {
				h.log.Warnf("subscriber queue full, %s events dropped (last %T)", humanize.Comma(int64(n)), ev)
			}
		}
	}
	return delivered
}

// Close closes every subscription channel. It is safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		close(s.c)
		delete(h.subs, s)
	}
}

// Subscribers returns the number of registered subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns the total number of events any subscriber missed.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Cancel unregisters the subscription and closes C. It is safe to call more
// than once and after the hub closed.
func (s *Subscription) Cancel() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.c)
}

// Dropped returns how many events this subscriber missed.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}
