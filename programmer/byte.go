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

type byteCmd uint8

const (
	byteRegisterRead byteCmd = iota
	byteRegisterWrite
	byteDirectRead
	byteDirectWrite
	byteBitRead
	byteBitWrite
	byteProbe
)

type byteState uint8

const (
	byteIdle byteState = iota
	byteStart
	byteRunning
	byteScan
	byteBitScan
	byteBitVerify
	byteProbeSet
	byteProbeClear
)

// probe target: bit 7 of CV8 is tested for both values
const (
	probeCV  = 8
	probeBit = 7
)

// byteOp reads or writes one byte on top of the inner layer
type byteOp struct {
	state byteState
	cmd   byteCmd
	cv    uint16
	data  uint8
	bit   uint8
	// skipPreset is handed to the inner layer
	skipPreset bool
	result     Code
}

func (p *Programmer) startInner(cmd innerCmd, cv uint16, data, bit uint8) {
	p.in = inner{
		state:      innerStart,
		cmd:        cmd,
		cv:         cv,
		data:       data,
		bit:        bit,
		skipPreset: p.by.skipPreset,
	}
}

func (p *Programmer) stepByte() {
	if p.in.state != innerIdle {
		p.stepInner()
		return
	}

	b := &p.by
	in := &p.in
	switch b.state {
	case byteIdle:

	case byteStart:
		b.result = NoAck
		switch b.cmd {
		case byteRegisterRead:
			p.startInner(cmdRegisterVerify, b.cv, 0, 0)
			b.state = byteScan
		case byteRegisterWrite:
			p.startInner(cmdRegisterWrite, b.cv, b.data, 0)
			b.state = byteRunning
		case byteDirectRead:
			p.startInner(cmdDirectVerify, b.cv, 0, 0)
			b.state = byteScan
		case byteDirectWrite:
			p.startInner(cmdDirectWrite, b.cv, b.data, 0)
			b.state = byteRunning
		case byteBitRead:
			b.data = 0
			p.startInner(cmdBitVerify, b.cv, 1, 0)
			b.state = byteBitScan
		case byteBitWrite:
			p.startInner(cmdBitWrite, b.cv, b.data, b.bit)
			b.state = byteRunning
		case byteProbe:
			p.startInner(cmdBitVerify, probeCV, 1, probeBit)
			b.state = byteProbeSet
		}

	case byteRunning:
		b.result = in.result
		b.data = in.data
		b.state = byteIdle

	case byteScan:
		// verify every value until one is acknowledged
		if in.result == OK {
			b.result = OK
			b.data = in.data
			b.state = byteIdle
			return
		}
		if in.data == 0xFF {
			b.result = Timeout
			b.state = byteIdle
			return
		}
		p.startInner(in.cmd, in.cv, in.data+1, 0)

	case byteBitScan:
		if in.result == OK {
			b.data |= 1 << in.bit
			p.bitOps = true
			p.bitCheck = p.clock.Now()
		}
		if in.bit < 7 {
			p.startInner(cmdBitVerify, b.cv, 1, in.bit+1)
			return
		}
		p.startInner(cmdDirectVerify, b.cv, b.data, 0)
		b.state = byteBitVerify

	case byteBitVerify:
		if in.result == OK {
			b.result = OK
		} else {
			b.result = BitErr
		}
		b.state = byteIdle

	case byteProbeSet:
		if in.result == OK {
			p.probed(true)
			return
		}
		p.startInner(cmdBitVerify, probeCV, 0, probeBit)
		b.state = byteProbeClear

	case byteProbeClear:
		p.probed(in.result == OK)
	}
}

func (p *Programmer) probed(capable bool) {
	b := &p.by
	b.result = OK
	b.state = byteIdle
	p.bitOps = capable
	p.bitCheck = p.clock.Now()
}
