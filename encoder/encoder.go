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

// Package encoder serializes DCC messages into a bitstream.
//
// The Encoder is a state machine advanced once per bit by Step. A producer hands it
// the next message through a single-slot mailbox guarded by a repeat counter: the
// mailbox may only be written while Count is zero, which Load enforces with an
// atomic handshake. When nothing is pending the encoder keeps sending ones.
package encoder

import (
	"sync/atomic"
	"time"

	"github.com/stefaandesmet2003/tapas/internal/frame"
)

// Bit timing
const (
	HalfPeriodOne  = 58 * time.Microsecond
	HalfPeriodZero = 116 * time.Microsecond
	CutoutGap      = 38 * time.Microsecond
)

// Preamble lengths in one-bits
const (
	PreambleMain = 14
	PreambleProg = 20
)

// Bit is one symbol put on the track
type Bit uint8

const (
	// One is a logical 1, two short half periods
	One Bit = iota
	// Zero is a logical 0, two long half periods
	Zero
	// CutoutStart drives CutoutGap and then switches the outputs off
	CutoutStart
	// CutoutEnd keeps the outputs off for one more bit period before re-enabling them
	CutoutEnd
)

// HalfPeriod returns the duration of each half of the symbol
func (b Bit) HalfPeriod() time.Duration {
	if b == Zero {
		return HalfPeriodZero
	}
	return HalfPeriodOne
}

func (b Bit) String() string {
	switch b {
	case One:
		return "1"
	case Zero:
		return "0"
	case CutoutStart:
		return "C"
	default:
		return "c"
	}
}

// State is the position of the encoder inside a packet
type State uint8

const (
	StateIdle State = iota
	StatePreamble
	StateByteStart
	StateByte
	StateXor
	StateEndBit
	StateCutout1
	StateCutout2
)

// Encoder holds the mailbox and the bit state machine.
// Step must be called from a single goroutine; Load, Count and TruncateRepeat
// may be called from another one.
type Encoder struct {
	mailbox      frame.Message
	count        atomic.Int32
	cutout       atomic.Bool
	serviceMode  atomic.Bool
	packets      atomic.Uint64
	current      frame.Message
	state        State
	remaining    int
	next         int
	shift        byte
	xor          byte
	bitsInState  int
	preambleBits int
}

// New creates an idle encoder with an empty mailbox
func New() *Encoder {
	return &Encoder{}
}

// Load places m in the mailbox to be sent count times.
// It refuses the message and returns false while the previous one is still pending.
func (e *Encoder) Load(m frame.Message, count int) bool {
	if count < 1 {
		count = 1
	}
	if e.count.Load() != 0 {
		return false
	}
	e.mailbox = m
	e.count.Store(int32(count))
	return true
}

// Count returns how many more times the mailbox will be picked up
func (e *Encoder) Count() int {
	return int(e.count.Load())
}

// Busy reports whether the mailbox still holds a pending message
func (e *Encoder) Busy() bool {
	return e.count.Load() != 0
}

// TruncateRepeat cuts a pending repetition down to the transmission in progress
func (e *Encoder) TruncateRepeat() {
	for {
		c := e.count.Load()
		if c <= 1 || e.count.CompareAndSwap(c, 1) {
			return
		}
	}
}

// SetServiceMode selects the long programming track preamble
func (e *Encoder) SetServiceMode(on bool) {
	e.serviceMode.Store(on)
}

// EnableCutout adds a bidirectional communication gap after every packet
func (e *Encoder) EnableCutout() {
	e.cutout.Store(true)
}

// DisableCutout removes the gap
func (e *Encoder) DisableCutout() {
	e.cutout.Store(false)
}

// CutoutEnabled reports whether packets end with a cutout
func (e *Encoder) CutoutEnabled() bool {
	return e.cutout.Load()
}

// Packets returns the number of packets completely sent
func (e *Encoder) Packets() uint64 {
	return e.packets.Load()
}

// State returns the current state of the bit machine
func (e *Encoder) State() State {
	return e.state
}

func (e *Encoder) preamble() int {
	if e.serviceMode.Load() {
		return PreambleProg
	}
	return PreambleMain
}

// Step advances the machine by one bit and returns the symbol to emit
func (e *Encoder) Step() Bit {
	switch e.state {
	case StateIdle:
		if e.count.Load() > 0 {
			e.current = e.mailbox
			e.remaining = int(e.current.Size)
			e.next = 0
			e.xor = 0
			e.count.Add(-1)
			// the idle bit itself is the first preamble bit
			e.preambleBits = e.preamble() - 1
			e.state = StatePreamble
		}
		return One

	case StatePreamble:
		e.preambleBits--
		if e.preambleBits <= 0 {
			e.state = StateByteStart
		}
		return One

	case StateByteStart:
		if e.remaining == 0 {
			e.shift = e.xor
			e.state = StateXor
		} else {
			e.shift = e.current.Data[e.next]
			e.xor ^= e.shift
			e.next++
			e.remaining--
			e.state = StateByte
		}
		e.bitsInState = 8
		return Zero

	case StateByte, StateXor:
		bit := One
		if e.shift&0x80 == 0 {
			bit = Zero
		}
		e.shift <<= 1
		e.bitsInState--
		if e.bitsInState == 0 {
			if e.state == StateByte {
				e.state = StateByteStart
			} else {
				e.state = StateEndBit
			}
		}
		return bit

	case StateEndBit:
		e.packets.Add(1)
		if e.cutout.Load() {
			e.state = StateCutout1
		} else {
			e.state = StateIdle
		}
		return One

	case StateCutout1:
		e.state = StateCutout2
		return CutoutStart

	default:
		e.state = StateIdle
		return CutoutEnd
	}
}
