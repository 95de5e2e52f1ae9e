// Package buffer holds history entries until their transaction finishes.
package buffer

import (
	"sync"
)

// Buffer is a mutex-guarded append-only list.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
}

func New[T any]() *Buffer[T] {
	return &Buffer[T]{}
}

func (b *Buffer[T]) Add(items ...T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, items...)
}

func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Drain returns the buffered items in insertion order and empties the buffer.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

// Reset discards the buffered items.
func (b *Buffer[T]) Reset() {
	b.Drain()
}
