// Package keylock provides a striped mutex keyed by an arbitrary comparable
// value, so that unrelated keys never contend on one global lock while a
// single key is still guaranteed serialized access.
package keylock

import "sync"

// Map is a registry of per-key mutexes. The zero value is ready to use.
type Map[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

type entry struct {
	mu       sync.Mutex
	refCount int
}

// Lock blocks until the calling goroutine holds the lock for key.
// Unlock must be called exactly once per successful Lock.
func (m *Map[K]) Lock(key K) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[K]*entry)
	}
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refCount++
	m.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the lock held for key. Once no goroutine references the
// key's entry it is removed from the map, so Map does not grow unbounded
// with one-shot keys (task IDs, composite OAuth keys, session keys).
func (m *Map[K]) Unlock(key K) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		m.mu.Unlock()
		panic("keylock: Unlock of unlocked key")
	}
	e.refCount--
	if e.refCount == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()

	e.mu.Unlock()
}

// WithLock runs fn while holding the lock for key, releasing it afterward
// regardless of panic.
func (m *Map[K]) WithLock(key K, fn func()) {
	m.Lock(key)
	defer m.Unlock(key)
	fn()
}
