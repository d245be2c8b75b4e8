// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package spsc implements a lock-free, power-of-two, single-producer
// single-consumer ring buffer with recyclable payload slots: the producer
// reserves a slot, fills it in place, then commits; the consumer peeks at
// the head slot and pops it, and the payload's interior state is recycled
// (cleared, not freed) across reuse.
//
// The read and write indices are plain sync/atomic counters rather than a
// third-party atomics wrapper: the operations needed here (Load/Add on a
// uint64) are exactly what sync/atomic already gives for free. Neither
// side caches the other's index; every call loads both.
package spsc

import (
	"errors"
	"sync/atomic"
)

// ErrFull is returned by Reserve when the ring has no free slot.
var ErrFull = errors.New("spsc: ring full")

// ErrEmpty is returned by Pop/Peek when the ring has no committed slot.
var ErrEmpty = errors.New("spsc: ring empty")

// Resettable payloads support in-place recycling: Reset clears interior
// state (e.g. nils out slices' length) without releasing backing storage,
// so a slot can be reused without reallocating on every commit/pop cycle.
type Resettable interface {
	Reset()
}

// Ring is a fixed-capacity SPSC ring buffer of T. Capacity is rounded up
// to the next power of two. All producer-side methods must be called from
// exactly one goroutine; all consumer-side methods from exactly one
// (possibly different) goroutine.
type Ring[T Resettable] struct {
	mask uint64
	buf  []T

	// write is advanced by the producer on Commit; read is advanced by the
	// consumer on Pop. Both are read by the opposite side, hence atomic.
	write atomic.Uint64
	read  atomic.Uint64
}

// NewRing returns a ring with at least `capacity` slots.
func NewRing[T Resettable](capacity int, zero func() T) *Ring[T] {
	if capacity < 1 {
		panic("spsc: capacity must be >= 1")
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	buf := make([]T, n)
	for i := range buf {
		buf[i] = zero()
	}
	return &Ring[T]{mask: uint64(n - 1), buf: buf}
}

// Reserve returns a pointer to the next free slot for the producer to fill
// in place, without yet making it visible to the consumer. Call Commit
// once the slot is fully populated.
func (r *Ring[T]) Reserve() (*T, error) {
	w := r.write.Load()
	read := r.read.Load()
	if w-read >= uint64(len(r.buf)) {
		return nil, ErrFull
	}
	return &r.buf[w&r.mask], nil
}

// Commit publishes the slot most recently returned by Reserve, making it
// visible to the consumer.
func (r *Ring[T]) Commit() {
	r.write.Add(1)
}

// Peek returns a pointer to the head (oldest committed) slot without
// removing it, for the consumer to inspect.
func (r *Ring[T]) Peek() (*T, error) {
	read := r.read.Load()
	w := r.write.Load()
	if read == w {
		return nil, ErrEmpty
	}
	return &r.buf[read&r.mask], nil
}

// Pop removes the head slot, recycling its payload (Reset, not
// reallocate) for the next Reserve to reuse.
func (r *Ring[T]) Pop() error {
	read := r.read.Load()
	w := r.write.Load()
	if read == w {
		return ErrEmpty
	}
	r.buf[read&r.mask].Reset()
	r.read.Add(1)
	return nil
}

// Len returns the number of committed-but-unpopped slots. Safe to call
// from either side; the value may be stale by the time it is read.
func (r *Ring[T]) Len() int {
	return int(r.write.Load() - r.read.Load())
}

// Cap returns the ring's slot count (rounded up to a power of two).
func (r *Ring[T]) Cap() int { return len(r.buf) }
