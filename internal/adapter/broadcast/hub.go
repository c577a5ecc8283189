// Package broadcast is the in-process rendition of a same-origin broadcast
// channel: contexts that share a Registry and a channel name see each other's
// dataset snapshots.
package broadcast

import (
	"sync"

	"tikkit/internal/domain"
)

// Registry owns the named hubs. One registry per process; injected rather
// than package-global so tests can run isolated universes side by side.
type Registry struct {
	mu   sync.Mutex
	hubs map[string]*Hub
}

func NewRegistry() *Registry {
	return &Registry{hubs: make(map[string]*Hub)}
}

// Channel returns the hub with the given name, creating it on first use.
func (r *Registry) Channel(name string) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[name]
	if !ok {
		h = NewHub()
		r.hubs[name] = h
	}
	return h
}

// Hub fans full dataset snapshots out to its subscribers. Delivery is best
// effort: a subscriber that has fallen behind loses intermediate snapshots,
// which is fine because every message carries the whole dataset.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan *domain.Dataset
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan *domain.Dataset)}
}

// Publish sends a deep copy of ds to every subscriber. The publisher's own
// subscription, if any, is not excluded; receivers replacing their dataset
// with an identical snapshot is harmless.
func (h *Hub) Publish(ds *domain.Dataset) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		snap := ds.Clone()
		select {
		case ch <- snap:
		default:
			// Slow subscriber: replace its pending snapshot with the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Subscribe registers a new context. The returned cancel func unregisters it
// and closes the channel.
func (h *Hub) Subscribe() (<-chan *domain.Dataset, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan *domain.Dataset, 1)
	h.subs[id] = ch
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, cancel
}
