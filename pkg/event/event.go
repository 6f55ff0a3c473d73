// Package event provides a small bounded event bus used to funnel
// socket-level occurrences (datagram received, peer connected, peer
// disconnected) from a transport's receive goroutine to whatever owns
// the game loop, without the receiver blocking the sender or either
// side sharing a buffer.
package event

import "fmt"

// Bus is a bounded single-producer/multi-consumer event channel. The
// zero value is not usable; construct with NewBus.
type Bus[T any] struct {
	ch chan T
}

// NewBus creates a Bus with the given channel capacity. capacity <= 0
// yields an unbuffered bus.
func NewBus[T any](capacity int) *Bus[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Bus[T]{ch: make(chan T, capacity)}
}

// ErrBusFull is returned by TryPublish when the bus has no room and no
// consumer is ready to receive immediately.
var ErrBusFull = fmt.Errorf("event: bus full")

// Publish blocks until the event is enqueued or done fires.
func (b *Bus[T]) Publish(ev T, done <-chan struct{}) error {
	select {
	case b.ch <- ev:
		return nil
	case <-done:
		return fmt.Errorf("event: publish canceled")
	}
}

// TryPublish enqueues ev without blocking. It returns ErrBusFull if the
// bus has no capacity available right now.
func (b *Bus[T]) TryPublish(ev T) error {
	select {
	case b.ch <- ev:
		return nil
	default:
		return ErrBusFull
	}
}

// Events exposes the receive side of the bus for range/select use.
func (b *Bus[T]) Events() <-chan T {
	return b.ch
}

// Close closes the underlying channel. Publish/TryPublish must not be
// called again afterward.
func (b *Bus[T]) Close() {
	close(b.ch)
}
