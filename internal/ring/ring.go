// tapas
// Copyright (c) 2025 The tapas Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of tapas.
//
// tapas is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// tapas is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with tapas; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package ring provides a fixed-capacity FIFO that keeps one slot in reserve
package ring

// Ring is a FIFO over a fixed array. rd == wr means empty; the slot before rd
// is never written, so a writer can never catch up with unread entries.
type Ring[T any] struct {
	buf []T
	rd  int
	wr  int
}

// New creates a ring with size slots, size-1 of them usable
func New[T any](size int) *Ring[T] {
	if size < 3 {
		panic("ring: size must be at least 3")
	}
	return &Ring[T]{buf: make([]T, size)}
}

func (r *Ring[T]) next(i int) int {
	i++
	if i == len(r.buf) {
		return 0
	}
	return i
}

// Cap returns the number of slots
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Len returns the number of unread entries
func (r *Ring[T]) Len() int {
	n := r.wr - r.rd
	if n < 0 {
		n += len(r.buf)
	}
	return n
}

// Empty reports whether there is nothing to read
func (r *Ring[T]) Empty() bool {
	return r.rd == r.wr
}

// NearlyFull reports whether at most one writable slot remains.
// Producers are expected to stop at this point.
func (r *Ring[T]) NearlyFull() bool {
	i := r.next(r.wr)
	if i == r.rd {
		return true
	}
	return r.next(i) == r.rd
}

// Put appends v. It returns ok=false when the ring had no writable slot left and v was dropped,
// and full=true when the ring is nearly full after the write.
func (r *Ring[T]) Put(v T) (ok, full bool) {
	if r.next(r.wr) == r.rd {
		return false, true
	}
	r.buf[r.wr] = v
	r.wr = r.next(r.wr)
	return true, r.NearlyFull()
}

// Peek returns the head entry without removing it
func (r *Ring[T]) Peek() (*T, bool) {
	if r.Empty() {
		return nil, false
	}
	return &r.buf[r.rd], true
}

// Pop drops the head entry
func (r *Ring[T]) Pop() {
	if !r.Empty() {
		r.rd = r.next(r.rd)
	}
}

// Each calls fn for every unread entry from head to tail until fn returns false
func (r *Ring[T]) Each(fn func(*T) bool) {
	for i := r.rd; i != r.wr; i = r.next(i) {
		if !fn(&r.buf[i]) {
			return
		}
	}
}

// Reset empties the ring
func (r *Ring[T]) Reset() {
	r.rd, r.wr = 0, 0
}
