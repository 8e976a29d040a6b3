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

package organizer

import "github.com/stefaandesmet2003/tapas/internal/frame"

// updateRepeat stores a just transmitted command for its remaining repeats.
// An older entry for the same decoder and instruction, or for the same
// turnout pair, is replaced; otherwise the entry with the fewest repeats left
// is overwritten.
func (o *Organizer) updateRepeat(m *frame.Message) {
	if m.Repeat == 0 || m.Type == frame.TypeProg {
		return
	}

	for i := range o.repeat {
		e := &o.repeat[i]
		if e.Repeat == 0 {
			continue
		}
		if supersedes(e, m) || sameTurnoutPair(e, m) {
			*e = *m
			return
		}
	}

	slot := 0
	lowest := 256
	for i := range o.repeat {
		if int(o.repeat[i].Repeat) < lowest {
			lowest = int(o.repeat[i].Repeat)
			slot = i
		}
	}
	o.repeat[slot] = *m
}

func sameTurnoutPair(a, b *frame.Message) bool {
	if !frame.IsAccessoryAddrByte(a.Data[0]) || a.Data[0] != b.Data[0] {
		return false
	}
	if a.Size != 2 || b.Size != 2 {
		return false
	}
	return (a.Data[1]^b.Data[1])&0x76 == 0
}

// clearRepeat cancels pending repeats of an older speed command to the same decoder
func (o *Organizer) clearRepeat(m *frame.Message) {
	at, k := classify(m)
	if !isSpeed(k) {
		return
	}
	for i := range o.repeat {
		e := &o.repeat[i]
		if e.Repeat == 0 {
			continue
		}
		eat, ek := classify(e)
		if eat == at && isSpeed(ek) && sameDecoder(e, m, at) {
			e.Repeat = 0
			return
		}
	}
}

// nextRepeat takes one repeat from the entry with the most repeats left
func (o *Organizer) nextRepeat() (frame.Message, bool) {
	best := -1
	var most uint8
	for i := range o.repeat {
		if o.repeat[i].Repeat > most {
			most = o.repeat[i].Repeat
			best = i
		}
	}
	if best < 0 {
		return frame.Message{}, false
	}
	o.repeat[best].Repeat--
	return o.repeat[best], true
}

// PendingRepeats returns the number of transmissions still owed by the repeat buffer
func (o *Organizer) PendingRepeats() int {
	n := 0
	for i := range o.repeat {
		n += int(o.repeat[i].Repeat)
	}
	return n
}
