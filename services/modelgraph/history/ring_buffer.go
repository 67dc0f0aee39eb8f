// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history provides a bounded double-ended buffer used for undo
// history.
package history

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 100

// RingBuffer is a fixed-size circular buffer usable as a FIFO queue or a
// LIFO stack.
//
// # Description
//
// Push is O(1). When the buffer is full, Push evicts the oldest item and
// returns it, so a stack built on PopNewest loses its bottom entries first.
//
// # Thread Safety
//
// NOT safe for concurrent use; caller must synchronize.
type RingBuffer[T any] struct {
	data  []T
	start int // index of the oldest item
	count int
}

// NewRingBuffer creates a new ring buffer with the given capacity.
//
// # Inputs
//
//   - capacity: Maximum number of items. Non-positive means DefaultCapacity.
//
// # Outputs
//
//   - *RingBuffer[T]: Ready-to-use buffer.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer[T]{data: make([]T, capacity)}
}

func (r *RingBuffer[T]) index(i int) int {
	return (r.start + i) % len(r.data)
}

// Push appends item as the newest element.
//
// # Outputs
//
//   - T: The evicted oldest item when the buffer was full.
//   - bool: True if an item was evicted.
func (r *RingBuffer[T]) Push(item T) (T, bool) {
	var evicted T
	if r.count == len(r.data) {
		evicted = r.data[r.start]
		r.data[r.start] = item
		r.start = r.index(1)
		return evicted, true
	}
	r.data[r.index(r.count)] = item
	r.count++
	return evicted, false
}

// Pop removes and returns the oldest item.
func (r *RingBuffer[T]) Pop() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	item := r.data[r.start]
	r.data[r.start] = zero
	r.start = r.index(1)
	r.count--
	return item, true
}

// PopNewest removes and returns the newest item.
func (r *RingBuffer[T]) PopNewest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	idx := r.index(r.count - 1)
	item := r.data[idx]
	r.data[idx] = zero
	r.count--
	return item, true
}

// Peek returns the oldest item without removing it.
func (r *RingBuffer[T]) Peek() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.data[r.start], true
}

// PeekNewest returns the newest item without removing it.
func (r *RingBuffer[T]) PeekNewest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.data[r.index(r.count-1)], true
}

// Items returns a copy of all items from oldest to newest.
func (r *RingBuffer[T]) Items() []T {
	if r.count == 0 {
		return nil
	}
	out := make([]T, r.count)
	for i := range out {
		out[i] = r.data[r.index(i)]
	}
	return out
}

// Len returns the current number of items.
func (r *RingBuffer[T]) Len() int { return r.count }

// Cap returns the maximum capacity.
func (r *RingBuffer[T]) Cap() int { return len(r.data) }

// IsEmpty returns true if the buffer has no items.
func (r *RingBuffer[T]) IsEmpty() bool { return r.count == 0 }

// Clear removes all items and drops their references.
func (r *RingBuffer[T]) Clear() {
	clear(r.data)
	r.start = 0
	r.count = 0
}
