// Package ringchan provides a bounded channel with overwrite-oldest
// semantics, used for event fan-out where a slow consumer must never block
// the producer.
package ringchan

import "sync"

// RingChannel wraps a buffered channel and ensures producers never block:
// when the buffer is full, the oldest element is discarded.
//
// Readers use C() and range over it until closed.
type RingChannel[T any] struct {
	ch        chan T
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest when full. Safe against a
// concurrently closed channel: sends after Close are dropped.
func (rc *RingChannel[T]) Send(v T) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	select {
	case rc.ch <- v:
	default:
		select {
		case <-rc.ch: // drop oldest
		default:
		}
		select {
		case rc.ch <- v:
		default:
		}
	}
}

// Close closes the channel. Subsequent sends are dropped.
func (rc *RingChannel[T]) Close() {
	rc.closeOnce.Do(func() {
		rc.mu.Lock()
		rc.closed = true
		rc.mu.Unlock()
		close(rc.ch)
	})
}
