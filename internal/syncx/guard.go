// Package syncx provides extended synchronization primitives
package syncx

import "sync"

// Guard wraps an RWMutex around a value. The pipeline keeps its small set of
// shared fields in one Guard so the tick loop and status readers take a single
// coarse lock.
type Guard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *Guard[T] {
	return &Guard[T]{value: initial}
}

// Update mutates the value in place under the write lock.
func (g *Guard[T]) Update(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
}

// View computes a result from the value under the read lock.
func View[T, R any](g *Guard[T], fn func(*T) R) R {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(&g.value)
}

// Modify mutates the value under the write lock and returns a result computed
// in the same critical section.
func Modify[T, R any](g *Guard[T], fn func(*T) R) R {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(&g.value)
}
