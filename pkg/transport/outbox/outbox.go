// Package outbox is the append-only outbound message log shared by the
// transports. Consumers stream it from an offset, so a relayer that restarts
// resumes where it left off.
package outbox

import (
	"context"
	"sync"
)

// Log is an append-only, offset-addressed sequence of messages.
type Log[T any] struct {
	mu    sync.Mutex
	items []T
	wake  chan struct{}
}

func New[T any]() *Log[T] {
	return &Log[T]{wake: make(chan struct{})}
}

// Append stores item and wakes every waiting stream. It returns the item's offset.
func (l *Log[T]) Append(item T) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items, item)
	close(l.wake)
	l.wake = make(chan struct{})
	return uint64(len(l.items) - 1)
}

func (l *Log[T]) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.items))
}

// Get returns the item at offset.
func (l *Log[T]) Get(offset uint64) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero T
	if offset >= uint64(len(l.items)) {
		return zero, false
	}
	return l.items[offset], true
}

// Stream delivers every item from offset on, then keeps delivering new items
// as they are appended. The channel closes when ctx is done.
func (l *Log[T]) Stream(ctx context.Context, offset uint64) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		next := offset
		for {
			l.mu.Lock()
			var pending []T
			if next < uint64(len(l.items)) {
				pending = append(pending, l.items[next:]...)
			}
			wake := l.wake
			l.mu.Unlock()

			if len(pending) == 0 {
				select {
				case <-wake:
					continue
				case <-ctx.Done():
					return
				}
			}
			for _, item := range pending {
				select {
				case out <- item:
					next++
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
