package fabric

import (
	"sync"

	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// EventFilter narrows a subscription. A zero-value filter matches
// everything. Worldlines and Kinds, when non-empty, are an allow-list;
// Since, when non-nil, excludes events whose timestamp does not sort
// strictly after it.
type EventFilter struct {
	Worldlines map[wcrypto.Digest]bool
	Kinds      map[EventKind]bool
	Since      *TemporalAnchor
}

func (f EventFilter) matches(e FabricEvent) bool {
	if len(f.Worldlines) > 0 && !f.Worldlines[e.Worldline] {
		return false
	}
	if len(f.Kinds) > 0 && !f.Kinds[e.Kind] {
		return false
	}
	if f.Since != nil && !f.Since.Less(e.Timestamp) {
		return false
	}
	return true
}

// subscription is one router-side registration: a filter plus the
// bounded channel events are delivered on.
type subscription struct {
	filter EventFilter
	ch     chan FabricEvent
}

// Router is an in-process fan-out bus. Route never blocks on a slow
// subscriber: delivery is a non-blocking send, and on a full channel the
// oldest queued event is dropped to make room (§4.3 Event router).
type Router struct {
	mu      sync.Mutex
	subs    map[int]*subscription
	nextId  int
	dropped map[int]uint64
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{subs: make(map[int]*subscription), dropped: make(map[int]uint64)}
}

// Subscribe registers a new subscriber with the given filter and
// channel capacity, returning the channel to receive on and an id usable
// with Unsubscribe.
func (r *Router) Subscribe(filter EventFilter, capacity int) (<-chan FabricEvent, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextId
	r.nextId++
	ch := make(chan FabricEvent, capacity)
	r.subs[id] = &subscription{filter: filter, ch: ch}
	return ch, id
}

// Unsubscribe closes and removes the subscriber identified by id.
func (r *Router) Unsubscribe(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subs[id]; ok {
		close(sub.ch)
		delete(r.subs, id)
		delete(r.dropped, id)
	}
}

// Route delivers e to every matching subscriber. A subscriber whose
// channel is full has its oldest queued event dropped to make room; a
// subscriber whose channel has no live receiver (send panics on a closed
// channel, so closed subscribers are removed via Unsubscribe rather than
// detected here) is never silently left in the map beyond its own
// Unsubscribe call.
func (r *Router) Route(e FabricEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, sub := range r.subs {
		if !sub.filter.matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			select {
			case <-sub.ch:
				r.dropped[id]++
			default:
			}
			select {
			case sub.ch <- e:
			default:
				r.dropped[id]++
			}
		}
	}
}

// Dropped returns how many events have been dropped for subscriber id
// due to overflow, for observability.
func (r *Router) Dropped(id int) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped[id]
}

// SubscriberCount reports how many subscriptions are currently active.
func (r *Router) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
