// Package ringbuf provides the fixed-capacity look-back buffer that holds the
// most recent frames before a trigger.
package ringbuf

import "sync"

// Buffer keeps the last Cap() items appended, oldest first. Append never
// blocks or fails; once full, each Append evicts the oldest item. A capacity
// of zero is valid and retains nothing.
//
// Buffer is safe for concurrent use. Snapshot never observes a partially
// applied Append.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
	start int
	count int
}

// New returns a buffer holding at most capacity items. Negative capacities
// are treated as zero.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Append adds item as the newest entry.
func (b *Buffer[T]) Append(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	capacity := len(b.items)
	if capacity == 0 {
		return
	}
	if b.count < capacity {
		b.items[(b.start+b.count)%capacity] = item
		b.count++
		return
	}
	b.items[b.start] = item
	b.start = (b.start + 1) % capacity
}

// Snapshot returns an independent copy of the buffered items in insertion
// order. Later appends do not affect the returned slice.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, b.count)
	capacity := len(b.items)
	for i := 0; i < b.count; i++ {
		out[i] = b.items[(b.start+i)%capacity]
	}
	return out
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Reset discards all buffered items.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.start = 0
	b.count = 0
}
