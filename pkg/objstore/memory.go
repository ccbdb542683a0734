package objstore

import (
	"context"
	"sync"
)

// Memory is an in-memory Store backed by a map guarded by an RWMutex:
// writers are serialized, readers run in parallel, matching the
// concurrency model in §5 (object store map: read-write lock).
type Memory struct {
	mu      sync.RWMutex
	objects map[ObjectId]StoredObject
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[ObjectId]StoredObject)}
}

func (m *Memory) Write(_ context.Context, obj StoredObject) (ObjectId, error) {
	id, err := validateWrite(obj)
	if err != nil {
		return ObjectId{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[id]; exists {
		return id, nil // idempotent: identical content, same id, no-op
	}
	m.objects[id] = obj
	return id, nil
}

func (m *Memory) Read(_ context.Context, id ObjectId) (StoredObject, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[id]
	return obj, ok, nil
}

func (m *Memory) Exists(_ context.Context, id ObjectId) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[id]
	return ok, nil
}

func (m *Memory) Delete(_ context.Context, id ObjectId) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; !ok {
		return false, nil
	}
	delete(m.objects, id)
	return true, nil
}

// Len returns the number of distinct objects currently stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// All returns a snapshot slice of every stored object id, for pack
// building and GC reachability walks.
func (m *Memory) All() []ObjectId {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]ObjectId, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	return ids
}
