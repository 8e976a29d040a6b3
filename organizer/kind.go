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

// kind is the instruction class of a locomotive message
type kind uint8

const (
	kindOther kind = iota
	kindSpeed128
	kindSpeed
	kindF1
	kindF2
	kindF3
	kindF4
	kindF5
)

// instrOffset returns the index of the instruction byte of a multifunction
// decoder message, or false for broadcasts, accessories and idle
func instrOffset(m *frame.Message) (int, bool) {
	a := m.Data[0]
	switch {
	case a > 0 && frame.IsShortAddrByte(a):
		return 1, m.Size > 1
	case frame.IsLongAddrByte(a):
		return 2, m.Size > 2
	default:
		return 0, false
	}
}

func kindAt(m *frame.Message, at int) kind {
	b := m.Data[at]
	switch {
	case b == 0x3F && int(m.Size) > at+1:
		return kindSpeed128
	case b&0xC0 == 0x40:
		return kindSpeed
	case b&0xE0 == 0x80:
		return kindF1
	case b&0xF0 == 0xB0:
		return kindF2
	case b&0xF0 == 0xA0:
		return kindF3
	case b == 0xDE:
		return kindF4
	case b == 0xDF:
		return kindF5
	default:
		return kindOther
	}
}

// classify returns the instruction offset and class of m
func classify(m *frame.Message) (int, kind) {
	at, ok := instrOffset(m)
	if !ok {
		return 0, kindOther
	}
	return at, kindAt(m, at)
}

// sameDecoder reports whether a and b address the same multifunction decoder
func sameDecoder(a, b *frame.Message, at int) bool {
	if a.Data[0] != b.Data[0] {
		return false
	}
	return at == 1 || a.Data[1] == b.Data[1]
}

// supersedes reports whether next makes queued obsolete: same decoder, same
// speed or function group instruction
func supersedes(queued, next *frame.Message) bool {
	at, k := classify(queued)
	if k == kindOther || queued.Size != next.Size {
		return false
	}
	nat, nk := classify(next)
	return nat == at && nk == k && sameDecoder(queued, next, at)
}

func isSpeed(k kind) bool {
	return k == kindSpeed || k == kindSpeed128
}
