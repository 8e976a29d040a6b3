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

package programmer

import "github.com/stefaandesmet2003/tapas/internal/frame"

// cycles counts the packets around one service mode command:
// leading resets, page presets, middle resets, command repeats and
// trailing resets after a write
type cycles [5]uint8

var (
	directCycles   = cycles{3, 0, 0, 5, 6}
	registerCycles = cycles{3, 5, 9, 7, 10}
)

const maxExtension = 10

func (c cycles) extend(resets, commands uint8) cycles {
	c[0] += min(resets, maxExtension)
	c[3] += min(commands, maxExtension)
	return c
}

// trailing resets after a verify
const readTrailingResets = 2

// pagePreset sets the page register to 1 before a register mode access
var pagePreset = frame.New(frame.TypeVoid, 1, 0x7D, 0x01)

type innerCmd uint8

const (
	cmdDirectWrite innerCmd = iota
	cmdDirectVerify
	cmdBitWrite
	cmdBitVerify
	cmdRegisterWrite
	cmdRegisterVerify
)

type innerState uint8

const (
	innerIdle innerState = iota
	innerStart
	innerLeadReset
	innerPagePreset
	innerMidReset
	innerCommand
	innerTrailSetup
	innerTrailReset
)

// inner sends a single command and listens for the acknowledge
type inner struct {
	state innerState
	cmd   innerCmd
	// cv is 1-based for direct commands and the 0-based register otherwise
	cv    uint16
	data  uint8
	bit   uint8
	write bool
	// skipPreset leaves out the page presets, so a selected page survives
	skipPreset bool

	msg    frame.Message
	cyc    cycles
	result Code
}

func (p *Programmer) buildCommand() {
	in := &p.in
	in.write = false
	switch in.cmd {
	case cmdDirectWrite:
		in.msg = frame.DirectWrite(in.cv, in.data)
		in.cyc = p.direct
		in.write = true
	case cmdDirectVerify:
		in.msg = frame.DirectVerify(in.cv, in.data)
		in.cyc = p.direct
	case cmdBitWrite:
		in.msg = frame.DirectBitWrite(in.cv, in.bit, in.data&0x01)
		in.cyc = p.direct
		in.write = true
	case cmdBitVerify:
		in.msg = frame.DirectBitVerify(in.cv, in.bit, in.data&0x01)
		in.cyc = p.direct
	case cmdRegisterWrite:
		in.msg = frame.RegisterWrite(uint8(in.cv), in.data)
		in.cyc = p.register
		in.write = true
	case cmdRegisterVerify:
		in.msg = frame.RegisterVerify(uint8(in.cv), in.data)
		in.cyc = p.register
	}
	if in.skipPreset {
		in.cyc[1] = 0
	}
}

func (p *Programmer) stepInner() {
	in := &p.in
	switch in.state {
	case innerIdle:

	case innerStart:
		p.buildCommand()
		in.result = NoAck
		p.putReset(in.cyc[0])
		in.state = innerLeadReset

	case innerLeadReset:
		if !p.queue.ProgEmpty() {
			return
		}
		if in.cyc[1] > 0 {
			m := pagePreset
			m.Repeat = in.cyc[1]
			p.queue.PutProg(m)
		}
		in.state = innerPagePreset

	case innerPagePreset:
		if !p.queue.ProgEmpty() {
			return
		}
		p.putReset(in.cyc[2])
		in.state = innerMidReset

	case innerMidReset:
		if !p.queue.ProgEmpty() {
			return
		}
		in.msg.Repeat = in.cyc[3]
		p.queue.PutProg(in.msg)
		in.state = innerCommand

	case innerCommand:
		if !p.queue.ProgEmpty() {
			return
		}
		if p.ack.Ack() {
			if !p.debounce() {
				return
			}
			// no need to repeat a command the decoder already took
			p.enc.TruncateRepeat()
			in.result = OK
			in.state = innerTrailSetup
			return
		}
		// the repeats of the command are the acknowledge window
		if p.enc.Count() > 1 {
			return
		}
		in.state = innerTrailSetup

	case innerTrailSetup:
		n := uint8(readTrailingResets)
		if in.write {
			n = in.cyc[4]
		}
		p.putReset(n)
		in.state = innerTrailReset

	case innerTrailReset:
		if !p.queue.ProgEmpty() {
			return
		}
		in.state = innerIdle
	}
}
