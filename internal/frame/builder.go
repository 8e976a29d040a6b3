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
	"fmt"

	"github.com/stefaandesmet2003/tapas"
)

// Repeats holds the number of extra transmissions given to each command kind
type Repeats struct {
	Speed     uint8 `yaml:"speed" json:"speed"`
	Accessory uint8 `yaml:"accessory" json:"accessory"`
	Function  uint8 `yaml:"function" json:"function"`
	Pom       uint8 `yaml:"pom" json:"pom"`
}

// DefaultRepeats returns the repeat counts used when nothing is configured
func DefaultRepeats() Repeats {
	return Repeats{
		Speed:     3,
		Accessory: 2,
		Function:  0,
		Pom:       3,
	}
}

// Builder turns semantic commands into wire messages
type Builder struct {
	Repeats Repeats
}

// NewBuilder creates a builder with the given repeat counts
func NewBuilder(r Repeats) Builder {
	return Builder{Repeats: r}
}

func longAddr(addr uint16) (byte, byte) {
	return 0xC0 | byte(addr/256)&0x3F, byte(addr & 0xFF)
}

// speed28 encodes a rail speed 0..29 into 01DCSSSS
func speed28(speed uint8) byte {
	var data byte
	switch s := speed & 0x1F; s {
	case 0:
		data = 0
	case 1:
		data = 1
	default:
		data = ((s + 2) >> 1) | ((s & 0x01) << 4)
	}
	return data | (speed&0x80)>>2 | 0x40
}

// speed14 encodes a rail speed 0..15 into 01DUSSSS
func speed14(speed uint8) byte {
	return speed&0x0F | (speed&0x80)>>2 | 0x40
}

// LocoSpeed builds a speed command for a rail speed already converted to format f.
// light sets the headlight bit of the 14 step form.
func (b Builder) LocoSpeed(addr uint16, speed uint8, f tapas.Format, light bool) Message {
	switch f {
	case tapas.DCC128:
		if !IsShortAddr(addr) {
			hi, lo := longAddr(addr)
			return New(TypeLoco, b.Repeats.Speed, hi, lo, 0x3F, speed)
		}
		return New(TypeLoco, b.Repeats.Speed, byte(addr&0x7F), 0x3F, speed)
	case tapas.DCC27, tapas.DCC28:
		if !IsShortAddr(addr) {
			hi, lo := longAddr(addr)
			return New(TypeLoco, b.Repeats.Speed, hi, lo, speed28(speed))
		}
		return New(TypeLoco, b.Repeats.Speed, byte(addr&0x7F), speed28(speed))
	default:
		data := speed14(speed)
		if light {
			data |= 0x10
		}
		if !IsShortAddr(addr) {
			hi, lo := longAddr(addr)
			return New(TypeLoco, b.Repeats.Speed, hi, lo, data)
		}
		return New(TypeLoco, b.Repeats.Speed, byte(addr&0x7F), data)
	}
}

// function group instruction bytes; the low bits carry the function states
var functionGroups = [...]struct {
	instr byte
	mask  byte
	ext   bool
}{
	1: {instr: 0x80, mask: 0x1F},
	2: {instr: 0xB0, mask: 0x0F},
	3: {instr: 0xA0, mask: 0x0F},
	4: {instr: 0xDE, mask: 0xFF, ext: true},
	5: {instr: 0xDF, mask: 0xFF, ext: true},
}

// FunctionGroup builds a function group command.
// Group 1 carries FL,F4..F1 (FL in bit 4), 2 F8..F5, 3 F12..F9, 4 F20..F13, 5 F28..F21.
func (b Builder) FunctionGroup(addr uint16, group int, funcs uint8) Message {
	if group < 1 || group >= len(functionGroups) {
		panic(fmt.Sprintf("frame: invalid function group %d", group))
	}
	g := functionGroups[group]
	payload := make([]byte, 0, 4)
	if IsShortAddr(addr) {
		payload = append(payload, byte(addr&0x7F))
	} else {
		hi, lo := longAddr(addr)
		payload = append(payload, hi, lo)
	}
	if g.ext {
		payload = append(payload, g.instr, funcs)
	} else {
		payload = append(payload, g.instr|funcs&g.mask)
	}
	return New(TypeVoid, b.Repeats.Function, payload...)
}

// BasicAccessory builds 10AAAAAA 1aaaBCCC for turnout addr 0..4095.
// The three high address bits are sent inverted.
func (b Builder) BasicAccessory(addr uint16, coil, activate uint8) Message {
	decoder := addr/4 + 1
	pair := byte(addr % 4)
	b0 := 0x80 | byte(decoder&0x3F)
	b1 := 0x80 | (byte(decoder/0x40)^0x07)<<4
	b1 |= (activate & 0x01) << 3
	b1 |= pair<<1 | coil&0x01
	return New(TypeAccessory, b.Repeats.Accessory, b0, b1)
}

// extAccessoryAddr encodes 10AAAAAA 0aaa0AA1 for an extended accessory address
func extAccessoryAddr(addr uint16) (byte, byte) {
	b0 := 0x80 | byte((addr&0x3C)>>2)
	b1 := (byte(addr>>8)^0x07)<<4 | byte(addr&0x03)<<1 | 0x01
	return b0, b1
}

// ExtendedAccessory builds an extended accessory command carrying a 5 bit aspect
func (b Builder) ExtendedAccessory(addr uint16, aspect uint8) Message {
	b0, b1 := extAccessoryAddr(addr)
	return New(TypeAccessory, b.Repeats.Accessory, b0, b1, aspect)
}

// pom instructions, long form 1110CCAA
const (
	pomVerify = 0xE4
	pomWrite  = 0xEC
)

func pomInstr(kind byte, cv uint16) (byte, byte) {
	cvAddr := cv - 1
	return kind | byte(cvAddr>>8)&0x03, byte(cvAddr & 0xFF)
}

func (b Builder) pomLoco(addr, cv uint16, kind, data byte) Message {
	i0, i1 := pomInstr(kind, cv)
	if IsShortAddr(addr) {
		return New(TypeProg, b.Repeats.Pom, byte(addr&0x7F), i0, i1, data)
	}
	hi, lo := longAddr(addr)
	return New(TypeProg, b.Repeats.Pom, hi, lo, i0, i1, data)
}

// PomLoco writes a CV (1..1024) of a locomotive on the main track
func (b Builder) PomLoco(addr, cv uint16, data uint8) Message {
	return b.pomLoco(addr, cv, pomWrite, data)
}

// PomLocoRead asks a locomotive to report a CV
func (b Builder) PomLocoRead(addr, cv uint16) Message {
	return b.pomLoco(addr, cv, pomVerify, 0)
}

func (b Builder) pomAccessory(addr, cv uint16, kind, data byte) Message {
	b0 := 0x80 | byte(addr&0x3F)
	b1 := 0x80 | (byte(addr/0x40)^0x07)<<4
	i0, i1 := pomInstr(kind, cv)
	return New(TypeProg, b.Repeats.Pom, b0, b1, i0, i1, data)
}

// PomAccessory writes a CV of a basic accessory decoder (decoder address, not turnout)
func (b Builder) PomAccessory(addr, cv uint16, data uint8) Message {
	return b.pomAccessory(addr, cv, pomWrite, data)
}

// PomAccessoryRead asks a basic accessory decoder to report a CV
func (b Builder) PomAccessoryRead(addr, cv uint16) Message {
	return b.pomAccessory(addr, cv, pomVerify, 0)
}

func (b Builder) pomExtAccessory(addr, cv uint16, kind, data byte) Message {
	b0, b1 := extAccessoryAddr(addr)
	i0, i1 := pomInstr(kind, cv)
	return New(TypeProg, b.Repeats.Pom, b0, b1, i0, i1, data)
}

// PomExtAccessory writes a CV of an extended accessory decoder
func (b Builder) PomExtAccessory(addr, cv uint16, data uint8) Message {
	return b.pomExtAccessory(addr, cv, pomWrite, data)
}

// PomExtAccessoryRead asks an extended accessory decoder to report a CV
func (b Builder) PomExtAccessoryRead(addr, cv uint16) Message {
	return b.pomExtAccessory(addr, cv, pomVerify, 0)
}

// Clock is a model time of day as broadcast on the track
type Clock struct {
	Minute    uint8 `json:"minute"`
	Hour      uint8 `json:"hour"`
	DayOfWeek uint8 `json:"dayOfWeek"` // 0 = Monday
	Ratio     uint8 `json:"ratio"`
}

// FastClock builds the broadcast 00000000 11000001 time message
func (Builder) FastClock(c Clock) Message {
	return New(TypeVoid, 0,
		0x00, 0xC1,
		c.Minute&0x3F,
		0x80|c.Hour&0x3F,
		0x40|c.DayOfWeek&0x07,
		0xC0|c.Ratio&0x3F,
	)
}
