package synca

import "sync"

// Map is a goroutine-safe get-or-compute map. GetOrAdd computes its factory
// outside the lock and only takes the lock to decide whether to keep the
// computed value or discard it in favor of a concurrent winner — the same
// contract as .NET's ConcurrentDictionary.GetOrAdd: the factory may run more
// than once under contention, but only the first insertion is ever observed.
type Map[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// NewMap creates an empty Map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V)}
}

// Get performs a lock-free-ish (RLock-protected) read of the current state.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[key]
	return v, ok
}

// GetOrAdd returns the existing value for key, or computes one with factory
// and stores it if absent. factory runs without holding the map's lock, so
// it may safely perform further Map operations (including against this same
// Map) without risking deadlock; under contention more than one caller may
// compute a value, but all callers observe the same stored winner.
func (m *Map[K, V]) GetOrAdd(key K, factory func(K) V) V {
	if v, ok := m.Get(key); ok {
		return v
	}

	v := factory(key)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.m[key]; ok {
		return existing
	}
	m.m[key] = v
	return v
}

// Upsert stores value for key unconditionally.
func (m *Map[K, V]) Upsert(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
}

// TryRemove deletes key if present.
func (m *Map[K, V]) TryRemove(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
}

// Keys returns a snapshot of the current keys.
func (m *Map[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, 0, len(m.m))
	for k := range m.m {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of entries currently stored.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}
