// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBuffer_DefaultCapacity(t *testing.T) {
	r := NewRingBuffer[int](0)
	assert.Equal(t, DefaultCapacity, r.Cap())
	assert.True(t, r.IsEmpty())
}

func TestRingBuffer_FIFO(t *testing.T) {
	r := NewRingBuffer[int](3)
	for i := 1; i <= 3; i++ {
		_, evicted := r.Push(i)
		assert.False(t, evicted)
	}

	old, evicted := r.Push(4)
	assert.True(t, evicted)
	assert.Equal(t, 1, old)
	assert.Equal(t, []int{2, 3, 4}, r.Items())

	v, ok := r.Peek()
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = r.Pop()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, r.Len())
}

func TestRingBuffer_LIFO(t *testing.T) {
	r := NewRingBuffer[string](2)
	r.Push("a")
	r.Push("b")
	r.Push("c") // evicts "a"

	v, ok := r.PeekNewest()
	assert.True(t, ok)
	assert.Equal(t, "c", v)

	v, _ = r.PopNewest()
	assert.Equal(t, "c", v)
	v, _ = r.PopNewest()
	assert.Equal(t, "b", v)
	_, ok = r.PopNewest()
	assert.False(t, ok)

	// Reuse after wrap-around.
	r.Push("d")
	assert.Equal(t, []string{"d"}, r.Items())
}

func TestRingBuffer_EmptyAndClear(t *testing.T) {
	r := NewRingBuffer[*int](4)
	_, ok := r.Pop()
	assert.False(t, ok)
	_, ok = r.Peek()
	assert.False(t, ok)
	_, ok = r.PeekNewest()
	assert.False(t, ok)
	assert.Nil(t, r.Items())

	x := 1
	r.Push(&x)
	r.Push(&x)
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Items())
	assert.Equal(t, 4, r.Cap())
}
