package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/efreitasn/hookrelay/internal/domain"
	"github.com/google/btree"
	"github.com/google/uuid"
)

// DefaultSubscriberBuffer is the per-subscription queue depth used when the
// hub is created with a non-positive buffer size.
const DefaultSubscriberBuffer = 100

// hubEntry is the fan-out registration for a single identification.
type hubEntry struct {
	key      string
	lastUsed time.Time // guarded by Hub.mu

	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription
}

// detach closes every subscription of a removed entry. Nothing can publish
// to the entry afterwards, so receivers end once drained.
func (e *hubEntry) detach() {
	e.mu.Lock()
	subs := e.subs
	e.subs = make(map[uuid.UUID]*Subscription)
	e.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// idleItem orders entries in the idle index.
type idleItem struct {
	lastUsed time.Time
	key      string
}

// idleLess orders by activity time ascending, then key ascending, so Min()
// returns the entry idle for the longest time.
func idleLess(a, b idleItem) bool {
	if !a.lastUsed.Equal(b.lastUsed) {
		return a.lastUsed.Before(b.lastUsed)
	}
	return a.key < b.key
}

// HubStats is a point-in-time snapshot of hub counters.
type HubStats struct {
	Entries     int
	Subscribers int
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Evicted     uint64
}

// Hub is the per-identification publish/subscribe registry. An entry exists
// for every identification with a live subscriber or recent activity; idle
// entries are removed by SweepIdle.
//
// Lock order: Hub.mu, then hubEntry.mu, then Subscription.mu.
type Hub struct {
	mu      sync.RWMutex
	entries map[string]*hubEntry
	idle    *btree.BTreeG[idleItem]

	bufferSize int
	now        func() time.Time

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	evicted   atomic.Uint64
}

// NewHub creates an empty hub whose subscriptions buffer up to bufferSize
// messages each.
func NewHub(bufferSize int) *Hub {
	const degree = 16
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Hub{
		entries:    make(map[string]*hubEntry),
		idle:       btree.NewG[idleItem](degree, idleLess),
		bufferSize: bufferSize,
		now:        time.Now,
	}
}

// touch moves e to the back of the idle index. Caller must hold h.mu.
func (h *Hub) touch(e *hubEntry, now time.Time) {
	h.idle.Delete(idleItem{lastUsed: e.lastUsed, key: e.key})
	e.lastUsed = now
	h.idle.ReplaceOrInsert(idleItem{lastUsed: now, key: e.key})
}

// Subscribe registers a new receiver for id, creating the entry if needed.
// It never fails.
func (h *Hub) Subscribe(id string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	e, ok := h.entries[id]
	if !ok {
		e = &hubEntry{
			key:      id,
			lastUsed: now,
			subs:     make(map[uuid.UUID]*Subscription),
		}
		h.entries[id] = e
		h.idle.ReplaceOrInsert(idleItem{lastUsed: now, key: id})
	} else {
		h.touch(e, now)
	}

	sub := newSubscription(id, e, h.bufferSize)
	e.mu.Lock()
	e.subs[sub.id] = sub
	e.mu.Unlock()
	return sub
}

// Publish delivers req to every receiver currently registered for id and
// returns how many were reached. Publishing to an identification without an
// entry is a no-op. Publish never blocks on a slow receiver.
func (h *Hub) Publish(id string, req domain.CapturedRequest) int {
	h.mu.Lock()
	e, ok := h.entries[id]
	if !ok {
		h.mu.Unlock()
		return 0
	}
	h.touch(e, h.now())
	// Take the entry lock before releasing the hub lock so deliveries for one
	// identification keep publish order.
	e.mu.Lock()
	h.mu.Unlock()
	defer e.mu.Unlock()

	h.published.Add(1)
	for _, s := range e.subs {
		if s.push(req) {
			h.dropped.Add(1)
		}
	}
	h.delivered.Add(uint64(len(e.subs)))
	return len(e.subs)
}

// Unsubscribe releases a receiver registration and closes it. The entry
// itself stays in the registry until it is swept.
func (h *Hub) Unsubscribe(sub *Subscription) {
	e := sub.entry
	e.mu.Lock()
	delete(e.subs, sub.id)
	e.mu.Unlock()
	sub.close()
}

// SweepIdle removes every entry whose last activity is at least ttl in the
// past and returns the number removed. Subscriptions of removed entries are
// closed; publishes after removal never reach them.
func (h *Hub) SweepIdle(ttl time.Duration) int {
	cutoff := h.now().Add(-ttl)

	h.mu.Lock()
	var removed []*hubEntry
	for {
		item, ok := h.idle.Min()
		if !ok || item.lastUsed.After(cutoff) {
			break
		}
		h.idle.DeleteMin()
		if e, ok := h.entries[item.key]; ok {
			delete(h.entries, item.key)
			removed = append(removed, e)
		}
	}
	h.mu.Unlock()

	for _, e := range removed {
		e.detach()
	}
	h.evicted.Add(uint64(len(removed)))
	return len(removed)
}

// Has reports whether an entry exists for id.
func (h *Hub) Has(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.entries[id]
	return ok
}

// Len returns the number of registered entries.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	entries := make([]*hubEntry, 0, len(h.entries))
	for _, e := range h.entries {
		entries = append(entries, e)
	}
	h.mu.RUnlock()

	subscribers := 0
	for _, e := range entries {
		e.mu.Lock()
		subscribers += len(e.subs)
		e.mu.Unlock()
	}

	return HubStats{
		Entries:     len(entries),
		Subscribers: subscribers,
		Published:   h.published.Load(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
		Evicted:     h.evicted.Load(),
	}
}
