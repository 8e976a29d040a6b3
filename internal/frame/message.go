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

// Package frame provides the DCC message model, the message builders and speed conversion
package frame

import (
	"fmt"
	"strings"
)

// MaxSize is the largest payload a message can carry, checksum excluded
const MaxSize = 6

// MinSize is the smallest legal payload
const MinSize = 2

// ShortAddrLimit is the highest address sent with the one byte short address form
const ShortAddrLimit = 112

// MsgType tags a message with the handling it needs in the organizer
type MsgType uint8

const (
	// TypeVoid needs no special handling (functions, resets)
	TypeVoid MsgType = iota
	// TypeStop is a broadcast stop or brake
	TypeStop
	// TypeLoco is a locomotive speed command
	TypeLoco
	// TypeAccessory is an accessory command
	TypeAccessory
	// TypeFeedback is an accessory command with feedback
	TypeFeedback
	// TypeProg is a service mode or program-on-main packet, repeated as a burst
	TypeProg
	// TypeProgAck is a service mode packet expecting an acknowledge
	TypeProgAck
)

func (t MsgType) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeStop:
		return "stop"
	case TypeLoco:
		return "loco"
	case TypeAccessory:
		return "accessory"
	case TypeFeedback:
		return "feedback"
	case TypeProg:
		return "prog"
	case TypeProgAck:
		return "prog-ack"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

// Message is one DCC packet plus its scheduling metadata.
// Repeat is the number of extra transmissions requested; its meaning depends on Type.
type Message struct {
	Data   [MaxSize]byte
	Repeat uint8
	Size   uint8
	Type   MsgType
}

// New builds a message from payload bytes. A payload outside MinSize..MaxSize
// is a programming error and panics.
func New(t MsgType, repeat uint8, payload ...byte) Message {
	if len(payload) < MinSize || len(payload) > MaxSize {
		panic(fmt.Sprintf("frame: invalid payload size %d", len(payload)))
	}
	m := Message{Type: t, Repeat: repeat, Size: uint8(len(payload))}
	copy(m.Data[:], payload)
	return m
}

// Payload returns the bytes that go on the wire before the checksum
func (m Message) Payload() []byte {
	return m.Data[:m.Size]
}

// Checksum returns the XOR of all payload bytes
func (m Message) Checksum() byte {
	return Xor(m.Payload())
}

// Address returns the first payload byte, used for quick same-decoder tests
func (m Message) Address() byte {
	return m.Data[0]
}

// String renders the payload in hex followed by the checksum
func (m Message) String() string {
	var sb strings.Builder
	for i, b := range m.Payload() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	fmt.Fprintf(&sb, " [%02X]", m.Checksum())
	return sb.String()
}

// Xor returns the DCC error detection byte of data
func Xor(data []byte) byte {
	var x byte
	for _, b := range data {
		x ^= b
	}
	return x
}

// Predefined packets
var (
	Reset          = New(TypeVoid, 1, 0x00, 0x00)
	Idle           = New(TypeVoid, 1, 0xFF, 0x00)
	BroadcastStop  = New(TypeStop, 1, 0x00, 0x71)
	BroadcastBrake = New(TypeStop, 1, 0x00, 0x70)
)

// IsShortAddr reports whether addr uses the one byte address form
func IsShortAddr(addr uint16) bool {
	return addr <= ShortAddrLimit
}

// IsShortAddrByte reports whether a first payload byte addresses a short address locomotive
func IsShortAddrByte(b byte) bool {
	return b < ShortAddrLimit
}

// IsLongAddrByte reports whether a first payload byte starts a long locomotive address
func IsLongAddrByte(b byte) bool {
	return b >= 192 && b <= 231
}

// IsAccessoryAddrByte reports whether a first payload byte addresses an accessory decoder
func IsAccessoryAddrByte(b byte) bool {
	return b >= 128 && b <= 191
}
