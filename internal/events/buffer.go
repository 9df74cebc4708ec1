package events

import (
	"errors"
	"sync"
)

var (
	// ErrBufferFull is returned when a message arrives at a full buffer.
	ErrBufferFull = errors.New("events: buffer full")

	// ErrClosed is returned after the publisher has been stopped.
	ErrClosed = errors.New("events: publisher closed")
)

// Buffer is a thread-safe bounded FIFO ring.
type Buffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int // read position
	tail   int // write position
	count  int
	closed bool

	// Stats
	totalReceived int64
	totalSent     int64
	totalRejected int64
}

// NewBuffer creates a buffer holding at most capacity items.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	b := &Buffer[T]{
		buf: make([]T, capacity),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send adds an item without blocking. It returns ErrBufferFull when the
// buffer is at capacity and ErrClosed after Close.
func (b *Buffer[T]) Send(item T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.count == len(b.buf) {
		b.totalRejected++
		return ErrBufferFull
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % len(b.buf)
	b.count++
	b.totalReceived++

	// Signal waiting receivers
	b.cond.Signal()
	return nil
}

// Receive removes and returns an item from the buffer.
// Blocks until an item is available or the buffer is closed.
// Returns the item and true, or zero value and false if closed and empty.
func (b *Buffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Wait for data or close
	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// TryReceive attempts to receive without blocking.
func (b *Buffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

func (b *Buffer[T]) popLocked() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero // Clear reference for GC
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	b.totalSent++
	return item
}

// Close closes the buffer. After closing, Send returns ErrClosed.
// Receivers get the remaining items and then the closed signal.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast() // Wake all waiters
}

// Len returns the current number of items in the buffer.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the capacity of the buffer.
func (b *Buffer[T]) Cap() int {
	return len(b.buf)
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      len(b.buf),
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		TotalRejected: b.totalRejected,
	}
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count         int   `json:"count"`
	Capacity      int   `json:"capacity"`
	TotalReceived int64 `json:"total_received"`
	TotalSent     int64 `json:"total_sent"`
	TotalRejected int64 `json:"total_rejected"`
}
