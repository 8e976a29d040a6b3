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

package frame

import (
	"testing"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_LocoSpeed(t *testing.T) {
	t.Parallel()
	b := NewBuilder(DefaultRepeats())

	tests := []struct {
		name   string
		addr   uint16
		speed  uint8
		format tapas.Format
		light  bool
		want   []byte
	}{
		{
			name:   "short 128 forward",
			addr:   3,
			speed:  0x80 | 66,
			format: tapas.DCC128,
			want:   []byte{0x03, 0x3F, 0xC2},
		},
		{
			name:   "short 128 reverse",
			addr:   3,
			speed:  66,
			format: tapas.DCC128,
			want:   []byte{0x03, 0x3F, 0x42},
		},
		{
			name:   "long 128",
			addr:   1234,
			speed:  0x85,
			format: tapas.DCC128,
			want:   []byte{0xC4, 0xD2, 0x3F, 0x85},
		},
		{
			name:   "short 28 stop",
			addr:   5,
			speed:  0x80,
			format: tapas.DCC28,
			want:   []byte{0x05, 0x60},
		},
		{
			name:   "short 28 emergency",
			addr:   5,
			speed:  0x01,
			format: tapas.DCC28,
			want:   []byte{0x05, 0x41},
		},
		{
			name:   "short 28 step 1",
			addr:   5,
			speed:  0x82,
			format: tapas.DCC28,
			want:   []byte{0x05, 0x62},
		},
		{
			name:   "short 28 step 2",
			addr:   5,
			speed:  0x83,
			format: tapas.DCC28,
			want:   []byte{0x05, 0x72},
		},
		{
			name:   "long 28 top",
			addr:   200,
			speed:  29,
			format: tapas.DCC28,
			want:   []byte{0xC0, 0xC8, 0x5F},
		},
		{
			name:   "short 14 with light",
			addr:   7,
			speed:  0x85,
			format: tapas.DCC14,
			light:  true,
			want:   []byte{0x07, 0x75},
		},
		{
			name:   "long 14 no light",
			addr:   113,
			speed:  0x05,
			format: tapas.DCC14,
			want:   []byte{0xC0, 0x71, 0x45},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := b.LocoSpeed(tt.addr, tt.speed, tt.format, tt.light)
			assert.Equal(t, tt.want, m.Payload())
			assert.Equal(t, TypeLoco, m.Type)
			assert.Equal(t, uint8(3), m.Repeat)
		})
	}
}

func TestBuilder_FunctionGroup(t *testing.T) {
	t.Parallel()
	b := NewBuilder(DefaultRepeats())

	tests := []struct {
		name  string
		addr  uint16
		group int
		funcs uint8
		want  []byte
	}{
		{name: "group 1 short light and F1", addr: 3, group: 1, funcs: 0x11, want: []byte{0x03, 0x91}},
		{name: "group 2 short", addr: 3, group: 2, funcs: 0x0A, want: []byte{0x03, 0xBA}},
		{name: "group 3 long", addr: 1000, group: 3, funcs: 0x0F, want: []byte{0xC3, 0xE8, 0xAF}},
		{name: "group 4 short", addr: 3, group: 4, funcs: 0x81, want: []byte{0x03, 0xDE, 0x81}},
		{name: "group 5 long", addr: 1000, group: 5, funcs: 0xFF, want: []byte{0xC3, 0xE8, 0xDF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := b.FunctionGroup(tt.addr, tt.group, tt.funcs)
			assert.Equal(t, tt.want, m.Payload())
			assert.Equal(t, uint8(0), m.Repeat)
		})
	}

	require.Panics(t, func() { b.FunctionGroup(3, 0, 0) })
	require.Panics(t, func() { b.FunctionGroup(3, 6, 0) })
}

func TestBuilder_Accessory(t *testing.T) {
	t.Parallel()
	b := NewBuilder(DefaultRepeats())

	// turnout 0 is decoder 1 pair 0
	m := b.BasicAccessory(0, 1, 1)
	assert.Equal(t, []byte{0x81, 0xF9}, m.Payload())
	assert.Equal(t, TypeAccessory, m.Type)
	assert.Equal(t, uint8(2), m.Repeat)

	// turnout 259 is decoder 65 pair 3, high address bits 001 inverted to 110
	m = b.BasicAccessory(259, 0, 0)
	assert.Equal(t, []byte{0x81, 0xE6}, m.Payload())

	m = b.ExtendedAccessory(5, 0x12)
	assert.Equal(t, []byte{0x81, 0x73, 0x12}, m.Payload())
}

func TestBuilder_Pom(t *testing.T) {
	t.Parallel()
	b := NewBuilder(DefaultRepeats())

	m := b.PomLoco(3, 29, 0x22)
	assert.Equal(t, []byte{0x03, 0xEC, 0x1C, 0x22}, m.Payload())
	assert.Equal(t, TypeProg, m.Type)

	m = b.PomLoco(1000, 1024, 0x01)
	assert.Equal(t, []byte{0xC3, 0xE8, 0xEF, 0xFF, 0x01}, m.Payload())

	m = b.PomLocoRead(3, 1)
	assert.Equal(t, []byte{0x03, 0xE4, 0x00, 0x00}, m.Payload())

	m = b.PomAccessory(1, 2, 7)
	assert.Equal(t, []byte{0x81, 0xF0, 0xEC, 0x01, 0x07}, m.Payload())

	m = b.PomAccessoryRead(1, 2)
	assert.Equal(t, []byte{0x81, 0xF0, 0xE4, 0x01, 0x00}, m.Payload())

	m = b.PomExtAccessory(5, 3, 9)
	assert.Equal(t, []byte{0x81, 0x73, 0xEC, 0x02, 0x09}, m.Payload())

	m = b.PomExtAccessoryRead(5, 3)
	assert.Equal(t, []byte{0x81, 0x73, 0xE4, 0x02, 0x00}, m.Payload())
}

func TestBuilder_FastClock(t *testing.T) {
	t.Parallel()
	b := NewBuilder(DefaultRepeats())

	m := b.FastClock(Clock{Minute: 30, Hour: 8, DayOfWeek: 2, Ratio: 8})
	assert.Equal(t, []byte{0x00, 0xC1, 0x1E, 0x88, 0x42, 0xC8}, m.Payload())
	assert.Equal(t, uint8(6), m.Size)
}

func TestServicePackets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  Message
		want []byte
		typ  MsgType
	}{
		{name: "direct write cv29", msg: DirectWrite(29, 0x22), want: []byte{0x7C, 0x1C, 0x22}, typ: TypeVoid},
		{name: "direct verify cv1", msg: DirectVerify(1, 3), want: []byte{0x74, 0x00, 0x03}, typ: TypeProg},
		{name: "direct verify cv1024", msg: DirectVerify(1024, 0), want: []byte{0x77, 0xFF, 0x00}, typ: TypeProg},
		{name: "bit verify", msg: DirectBitVerify(8, 7, 1), want: []byte{0x78, 0x07, 0xEF}, typ: TypeProg},
		{name: "bit write", msg: DirectBitWrite(29, 5, 1), want: []byte{0x78, 0x1C, 0xFD}, typ: TypeProg},
		{name: "register verify", msg: RegisterVerify(5, 1), want: []byte{0x75, 0x01}, typ: TypeProg},
		{name: "register write", msg: RegisterWrite(0, 3), want: []byte{0x78, 0x03}, typ: TypeProg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.msg.Payload())
			assert.Equal(t, tt.typ, tt.msg.Type)
		})
	}
}
