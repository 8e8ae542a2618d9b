// Package telemetry fans controller telemetry out to in-process consumers.
// The UART link publishes each decoded frame once; status endpoints,
// loggers and recorders subscribe independently.
package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/wire"
)

// DefaultBuffer is the per-subscriber channel depth. A slow consumer loses
// frames rather than stalling the publisher.
const DefaultBuffer = 16

// Sample is one telemetry frame with its arrival time.
type Sample struct {
	At        time.Time
	Telemetry wire.Telemetry
}

// Subscription is a live feed of telemetry samples. Close it with the
// hub's Unsubscribe.
type Subscription struct {
	ID uuid.UUID
	C  <-chan Sample
}

// Hub broadcasts telemetry samples to every subscriber. All methods are
// safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	subs    map[uuid.UUID]chan Sample
	dropped uint64
	last    Sample
	haveOne bool
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]chan Sample)}
}

// Subscribe registers a new consumer with the given channel depth; depth 0
// means DefaultBuffer. New subscribers immediately receive the most recent
// sample, if any, so late joiners do not start blind.
func (h *Hub) Subscribe(depth int) Subscription {
	if depth <= 0 {
		depth = DefaultBuffer
	}
	ch := make(chan Sample, depth)

	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.New()
	h.subs[id] = ch
	if h.haveOne {
		ch <- h.last
	}
	return Subscription{ID: id, C: ch}
}

// Unsubscribe removes a consumer and closes its channel. Unknown IDs are a
// no-op.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(ch)
}

// Publish delivers a sample to every subscriber without blocking. A
// subscriber whose buffer is full misses this sample.
func (h *Hub) Publish(s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = s
	h.haveOne = true
	for _, ch := range h.subs {
		select {
		case ch <- s:
		default:
			h.dropped++
		}
	}
}

// Latest returns the most recently published sample.
func (h *Hub) Latest() (Sample, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.haveOne
}

// Subscribers returns the current consumer count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many samples were lost to full subscriber buffers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
