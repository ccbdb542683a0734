package fabric

import (
	"fmt"

	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// Fabric ties a Clock, a WAL, and a Router together: every Emit stamps,
// serializes, durably appends, and only then routes (§4.3 Emit
// pipeline). Concurrency: the clock, WAL writer, and router each hold
// their own independent lock; Emit serializes on the WAL write but
// produces independent monotonic timestamps per call.
type Fabric struct {
	clock  *Clock
	wal    *WAL
	router *Router
}

// Open wires a fresh Fabric around an already-open WAL and a clock
// identified by nodeId.
func Open(wal *WAL, nodeId uint64) *Fabric {
	return &Fabric{clock: NewClock(nodeId), wal: wal, router: NewRouter()}
}

// Subscribe registers a new subscriber; see Router.Subscribe.
func (f *Fabric) Subscribe(filter EventFilter, capacity int) (<-chan FabricEvent, int) {
	return f.router.Subscribe(filter, capacity)
}

// Unsubscribe removes a subscriber registered with Subscribe.
func (f *Fabric) Unsubscribe(id int) { f.router.Unsubscribe(id) }

// Dropped reports the overflow-drop count for subscriber id.
func (f *Fabric) Dropped(id int) uint64 { return f.router.Dropped(id) }

// Emit stamps, serializes, durably WAL-appends, and routes one event.
// The WAL append happens before routing: a subscriber never observes an
// event that did not make it to stable storage.
func (f *Fabric) Emit(worldline wcrypto.Digest, kind EventKind, payload []byte) (FabricEvent, error) {
	events, err := f.EmitBatch([]EmitRequest{{Worldline: worldline, Kind: kind, Payload: payload}})
	if err != nil {
		return FabricEvent{}, err
	}
	return events[0], nil
}

// EmitRequest is one item queued for EmitBatch.
type EmitRequest struct {
	Worldline wcrypto.Digest
	Kind      EventKind
	Payload   []byte
}

// EmitBatch stamps every item with a fresh anchor, appends all of them to
// the WAL, and only then routes all of them — WAL persistence precedes
// publication for the whole batch (§4.3 Emit pipeline).
func (f *Fabric) EmitBatch(items []EmitRequest) ([]FabricEvent, error) {
	events := make([]FabricEvent, len(items))
	for i, item := range items {
		ts := f.clock.Now()
		events[i] = NewEvent(ts, item.Worldline, item.Kind, item.Payload)
	}

	for _, e := range events {
		if _, err := f.wal.Append(e); err != nil {
			return nil, fmt.Errorf("fabric: emit batch: %w", err)
		}
	}

	for _, e := range events {
		f.router.Route(e)
	}
	return events, nil
}

// Clock exposes the fabric's HLC, for components (e.g. the ledger) that
// must timestamp receipts from the same causal clock as fabric events.
func (f *Fabric) Clock() *Clock { return f.clock }

// Close shuts down the underlying WAL.
func (f *Fabric) Close() error { return f.wal.Close() }
