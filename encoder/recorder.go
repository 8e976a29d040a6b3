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

package encoder

import (
	"sync"

	"github.com/stefaandesmet2003/tapas/internal/frame"
)

// minPreamble is the shortest run of ones a decoder accepts before a packet
const minPreamble = 10

// Packet is a packet recovered from a recorded bitstream
type Packet struct {
	Payload  []byte
	Checksum byte
	Preamble int
	Cutout   bool
}

// Valid reports whether the checksum matches the payload
func (p Packet) Valid() bool {
	return frame.Xor(p.Payload) == p.Checksum
}

// Recorder is a BitSink keeping every symbol, with a decoder for the packets in it
type Recorder struct {
	bits []Bit
	mu   sync.Mutex
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit stores b
func (r *Recorder) Emit(b Bit) error {
	r.mu.Lock()
	r.bits = append(r.bits, b)
	r.mu.Unlock()
	return nil
}

// Bits returns a copy of the recorded symbols
func (r *Recorder) Bits() []Bit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Bit(nil), r.bits...)
}

// Reset forgets everything recorded
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.bits = r.bits[:0]
	r.mu.Unlock()
}

// Packets decodes the recorded symbols
func (r *Recorder) Packets() []Packet {
	return Decode(r.Bits())
}

// Decode recovers packets the way a track decoder would: a run of ones, a zero
// start bit, then bytes separated by zeros until a one ends the packet.
func Decode(bits []Bit) []Packet {
	var packets []Packet
	ones := 0
	for i := 0; i < len(bits); i++ {
		switch bits[i] {
		case One:
			ones++
			continue
		case CutoutStart, CutoutEnd:
			if n := len(packets); n > 0 {
				packets[n-1].Cutout = true
			}
			ones = 0
			continue
		}

		// a zero
		if ones < minPreamble {
			ones = 0
			continue
		}
		preamble := ones
		ones = 0

		var data []byte
		j := i + 1
		complete := false
		for j+8 < len(bits) {
			var b byte
			for k := 0; k < 8; k++ {
				b <<= 1
				if bits[j+k] == One {
					b |= 1
				}
			}
			data = append(data, b)
			sep := bits[j+8]
			j += 9
			if sep == One {
				complete = true
				break
			}
			if sep != Zero {
				break
			}
		}
		if complete && len(data) >= frame.MinSize+1 {
			packets = append(packets, Packet{
				Payload:  data[:len(data)-1],
				Checksum: data[len(data)-1],
				Preamble: preamble,
			})
			// the end bit doubles as the first one of the next preamble
			ones = 1
		}
		i = j - 1
	}
	return packets
}
