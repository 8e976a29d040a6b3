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

import "github.com/stefaandesmet2003/tapas"

type seqCmd uint8

const (
	seqRegisterRead seqCmd = iota
	seqRegisterWrite
	seqPagedRead
	seqPagedWrite
	seqDirectRead
	seqDirectWrite
	seqBitRead
	seqBitWrite
	seqQuery
	seqLongRead
	seqLongWrite
)

var seqNames = [...]string{
	seqRegisterRead:  "register read",
	seqRegisterWrite: "register write",
	seqPagedRead:     "paged read",
	seqPagedWrite:    "paged write",
	seqDirectRead:    "direct read",
	seqDirectWrite:   "direct write",
	seqBitRead:       "bit read",
	seqBitWrite:      "bit write",
	seqQuery:         "bit capability query",
	seqLongRead:      "long address read",
	seqLongWrite:     "long address write",
}

func (c seqCmd) String() string {
	return seqNames[c]
}

type seqState uint8

const (
	seqIdle seqState = iota
	seqStart
	seqRunning
	seqPageSelect
	seqCheckBitOps
	seqQueryDone
	seqLongReadHigh
	seqLongReadLow
	seqLongWriteHigh
	seqLongWriteLow
	seqLongWriteConfig
)

const (
	// pageRegister is the 0-based register holding the page in paged mode
	pageRegister = 5
	longHighCV   = 17
	longLowCV    = 18
	configCV     = 29
	// longAddrBit in CV29 enables the long address
	longAddrBit = 5
	maxCV       = 1024
	maxLongAddr = 10239
)

// sequence implements one public operation on top of the byte layer
type sequence struct {
	state seqState
	cmd   seqCmd
	// cv is the 1-based CV, or the 0-based register
	cv   uint16
	data uint8
	bit  uint8
	addr uint16
	size int
	// high keeps CV17 between the two halves of a long address read
	high uint8
}

func (p *Programmer) startByte(cmd byteCmd, cv uint16, data uint8) {
	p.by = byteOp{state: byteStart, cmd: cmd, cv: cv, data: data}
}

func (p *Programmer) stepSequence() {
	if p.by.state != byteIdle {
		p.stepByte()
		return
	}

	s := &p.seq
	b := &p.by
	switch s.state {
	case seqIdle:
		p.busy = false

	case seqStart:
		p.busy = true
		p.out.Code = Err
		s.size = 1
		s.state = seqRunning
		switch s.cmd {
		case seqRegisterRead, seqRegisterWrite:
			if s.cmd == seqRegisterRead {
				p.startByte(byteRegisterRead, s.cv, 0)
			} else {
				s.size = 0
				p.startByte(byteRegisterWrite, s.cv, s.data)
			}
			// the page presets leave the decoder on page 1
			p.page = 1
			if s.cv == pageRegister {
				p.page = -1
			}
			p.pageAt = p.clock.Now()
		case seqPagedRead, seqPagedWrite:
			page := int((s.cv-1)>>2) + 1
			p.startByte(byteRegisterWrite, pageRegister, uint8(page))
			if page == p.page {
				b.state = byteIdle
				b.result = OK
			}
			s.state = seqPageSelect
		case seqDirectRead:
			if p.bitOps {
				p.startByte(byteBitRead, s.cv, 0)
			} else {
				p.startByte(byteProbe, probeCV, 0)
				s.state = seqCheckBitOps
			}
		case seqDirectWrite:
			s.size = 0
			p.startByte(byteDirectWrite, s.cv, s.data)
		case seqBitRead:
			p.startByte(byteBitRead, s.cv, 0)
		case seqBitWrite:
			s.size = 0
			p.startByte(byteBitWrite, s.cv, s.data)
			b.bit = s.bit
		case seqQuery:
			s.size = 0
			p.startByte(byteProbe, probeCV, 0)
			s.state = seqQueryDone
		case seqLongRead:
			p.startByte(byteBitRead, longHighCV, 0)
			s.state = seqLongReadHigh
		case seqLongWrite:
			s.size = 0
			p.startByte(byteDirectWrite, longHighCV, uint8(s.addr/256+192))
			s.state = seqLongWriteHigh
		}

	case seqRunning:
		p.finish(b.result, b.data)

	case seqPageSelect:
		if b.result != OK {
			p.page = -1
			p.finish(PageErr, 0)
			return
		}
		p.page = int(b.data)
		p.pageAt = p.clock.Now()
		reg := (s.cv - 1) & 0x03
		if s.cmd == seqPagedRead {
			p.startByte(byteRegisterRead, reg, 0)
		} else {
			s.size = 0
			p.startByte(byteRegisterWrite, reg, s.data)
		}
		b.skipPreset = true
		s.state = seqRunning

	case seqCheckBitOps:
		if p.bitOps {
			p.startByte(byteBitRead, s.cv, 0)
		} else {
			p.startByte(byteDirectRead, s.cv, 0)
		}
		s.state = seqRunning

	case seqQueryDone:
		if p.bitOps {
			p.finish(BitCapable, 0)
		} else {
			p.finish(NotBitCapable, 0)
		}

	case seqLongReadHigh:
		if b.result != OK {
			p.finish(Err, 0)
			return
		}
		s.high = b.data
		p.startByte(byteBitRead, longLowCV, 0)
		s.state = seqLongReadLow

	case seqLongReadLow:
		if b.result != OK {
			p.finish(Err, 0)
			return
		}
		s.size = 2
		s.addr = uint16(s.high&0x3F)<<8 | uint16(b.data)
		p.finish(OK, b.data)

	case seqLongWriteHigh:
		if b.result != OK {
			p.finish(Err, 0)
			return
		}
		p.startByte(byteDirectWrite, longLowCV, uint8(s.addr%256))
		s.state = seqLongWriteLow

	case seqLongWriteLow:
		if b.result != OK {
			p.finish(Err, 0)
			return
		}
		p.startByte(byteBitWrite, configCV, 1)
		b.bit = longAddrBit
		s.state = seqLongWriteConfig

	case seqLongWriteConfig:
		if b.result != OK {
			p.finish(Err, 0)
			return
		}
		p.finish(OK, 0)
	}
}

// finish latches the outcome. The busy flag drops on the next step.
func (p *Programmer) finish(code Code, data uint8) {
	s := &p.seq
	p.out.Code = code
	p.out.Data = data
	p.out.Size = s.size
	p.out.Address = 0
	if s.cmd == seqLongRead && code == OK {
		p.out.Address = s.addr
	}
	s.state = seqIdle

	switch code {
	case OK, BitCapable, NotBitCapable:
		p.log.Infof("%s cv %d: %s, data 0x%02X", s.cmd, p.out.CV, code, data)
	default:
		p.out.Size = 0
		p.out.Data = 0
		p.log.Warnf("%s cv %d: %s", s.cmd, p.out.CV, code)
		p.mode.SetMode(tapas.ProgError)
	}

	if p.onResult != nil {
		p.onResult(p.out)
	}
	if p.cfg.AutoLeave {
		p.leavePending = true
	}
}

// begin enters programming mode and starts s. cv is the value reported
// in the outcome.
func (p *Programmer) begin(s sequence, q Qualifier, cv uint16) Reply {
	if p.busy {
		return Busy
	}
	p.enter()
	p.leavePending = false
	s.state = seqStart
	p.seq = s
	p.out = Outcome{Code: Err, Qualifier: q, CV: cv}
	p.busy = true
	p.log.Debugf("start %s cv %d data 0x%02X", s.cmd, cv, s.data)
	p.Run()
	return Accepted
}

func validCV(cv uint16) bool {
	return cv >= 1 && cv <= maxCV
}

func validRegister(reg uint8) bool {
	return reg >= 1 && reg <= 8
}

// RegisterRead reads physical register reg (1..8)
func (p *Programmer) RegisterRead(reg uint8) Reply {
	if !validRegister(reg) {
		return BadParameter
	}
	return p.begin(sequence{cmd: seqRegisterRead, cv: uint16(reg - 1)}, QualifierRegister, uint16(reg))
}

// RegisterWrite writes data to physical register reg (1..8)
func (p *Programmer) RegisterWrite(reg, data uint8) Reply {
	if !validRegister(reg) {
		return BadParameter
	}
	return p.begin(sequence{cmd: seqRegisterWrite, cv: uint16(reg - 1), data: data}, QualifierRegister, uint16(reg))
}

// PagedRead reads cv in paged mode
func (p *Programmer) PagedRead(cv uint16) Reply {
	if !validCV(cv) {
		return BadParameter
	}
	return p.begin(sequence{cmd: seqPagedRead, cv: cv}, QualifierRegister, cv)
}

// PagedWrite writes cv in paged mode
func (p *Programmer) PagedWrite(cv uint16, data uint8) Reply {
	if !validCV(cv) {
		return BadParameter
	}
	return p.begin(sequence{cmd: seqPagedWrite, cv: cv, data: data}, QualifierRegister, cv)
}

// DirectRead reads cv, bitwise when the decoder supports it and by
// verifying every value otherwise
func (p *Programmer) DirectRead(cv uint16) Reply {
	if !validCV(cv) {
		return BadParameter
	}
	return p.begin(sequence{cmd: seqDirectRead, cv: cv}, QualifierDirect, cv)
}

// DirectWrite writes cv in direct mode
func (p *Programmer) DirectWrite(cv uint16, data uint8) Reply {
	if !validCV(cv) {
		return BadParameter
	}
	return p.begin(sequence{cmd: seqDirectWrite, cv: cv, data: data}, QualifierDirect, cv)
}

// DirectBitRead reads cv with bit verifies
func (p *Programmer) DirectBitRead(cv uint16) Reply {
	if !validCV(cv) {
		return BadParameter
	}
	return p.begin(sequence{cmd: seqBitRead, cv: cv}, QualifierDirect, cv)
}

// DirectBitWrite writes value to bit pos (0..7) of cv
func (p *Programmer) DirectBitWrite(cv uint16, pos, value uint8) Reply {
	if !validCV(cv) || pos > 7 {
		return BadParameter
	}
	return p.begin(sequence{cmd: seqBitWrite, cv: cv, data: value & 0x01, bit: pos}, QualifierDirect, cv)
}

// QueryBitOps probes whether the decoder answers bit verifies
func (p *Programmer) QueryBitOps() Reply {
	return p.begin(sequence{cmd: seqQuery}, QualifierDirect, probeCV)
}

// LongAddressRead reads the long address from CV17 and CV18
func (p *Programmer) LongAddressRead() Reply {
	return p.begin(sequence{cmd: seqLongRead}, QualifierDirect, longHighCV)
}

// LongAddressWrite stores addr (1..10239) in CV17 and CV18 and enables it in CV29
func (p *Programmer) LongAddressWrite(addr uint16) Reply {
	if addr < 1 || addr > maxLongAddr {
		return BadParameter
	}
	return p.begin(sequence{cmd: seqLongWrite, addr: addr}, QualifierDirect, longHighCV)
}
