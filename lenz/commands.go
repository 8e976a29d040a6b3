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

package lenz

import (
	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/frame"
	"github.com/stefaandesmet2003/tapas/programmer"
)

// Baud rate codes of the F2 02 command
var baudRates = map[byte]int{1: 19200, 2: 38400, 3: 57600, 4: 115200}

// shortAddrLimit is the highest address reported as a short address
const shortAddrLimit = 99

func locoAddr(hi, lo byte) uint16 {
	return uint16(hi&0x3F)<<8 | uint16(lo)
}

// dispatch handles one complete frame; every path answers the host
func (p *Parser) dispatch(cmd []byte) {
	var handled bool
	switch cmd[0] >> 4 {
	case 0x0:
		handled = p.clockCommand(cmd)
	case 0x1:
		handled = p.extendedAccessory(cmd)
	case 0x2:
		handled = p.stationCommand(cmd)
	case 0x4:
		handled = p.feedbackRequest(cmd)
	case 0x5:
		handled = p.accessory(cmd)
	case 0x8:
		if cmd[0] == 0x80 {
			p.modes.SetMode(tapas.RunStop)
			p.send(replyAck)
			handled = true
		}
	case 0x9:
		handled = p.emergencyStop(cmd)
	case 0xE:
		handled = p.locoCommand(cmd)
	case 0xF:
		handled = p.interfaceCommand(cmd)
	}
	if !handled {
		p.log.Debugf("unknown command % X", cmd)
		p.send(replyUnknown)
	}
}

func (p *Parser) clockCommand(cmd []byte) bool {
	if len(cmd) < 2 {
		return false
	}
	switch cmd[1] {
	case 0xF1:
		c := p.fast.Clock()
		for _, code := range cmd[2:] {
			v := code & 0x3F
			switch code & 0xC0 {
			case 0x00:
				if v < 60 {
					c.Minute = v
				}
			case 0x80:
				if v < 24 {
					c.Hour = v
				}
			case 0x40:
				if v < 7 {
					c.DayOfWeek = v
				}
			case 0xC0:
				if v < 32 {
					c.Ratio = v
				}
			}
		}
		p.fast.SetClock(c)
		p.sendClock()
		return true
	case 0xF2:
		p.sendClock()
		return true
	}
	return false
}

func (p *Parser) sendClock() {
	c := p.fast.Clock()
	p.send([]byte{0x05, 0x01, c.Minute & 0x3F, 0x80 | c.Hour&0x3F, 0x40 | c.DayOfWeek&0x07, 0xC0 | c.Ratio&0x3F})
}

func (p *Parser) extendedAccessory(cmd []byte) bool {
	if cmd[0] != 0x13 || cmd[1] != 0x01 {
		return false
	}
	addr := uint16(cmd[2]&0x07)<<8 | uint16(cmd[3])
	p.org.ExtendedAccessory(addr, (cmd[2]>>3)&0x1F)
	p.send(replyAck)
	return true
}

// cvArg decodes the one byte CV of the classic programming commands, 0 is CV256
func cvArg(b byte) uint16 {
	if b == 0 {
		return 256
	}
	return uint16(b)
}

func (p *Parser) stationCommand(cmd []byte) bool {
	if len(cmd) < 2 {
		return false
	}
	switch op := cmd[1]; {
	case op == 0x10 && cmd[0] == 0x21:
		p.sendProgResult()
	case op == 0x11 && len(cmd) >= 3:
		p.progReply(p.prog.RegisterRead(cmd[2]))
	case op == 0x12 && len(cmd) >= 4:
		p.progReply(p.prog.RegisterWrite(cmd[2], cmd[3]))
	case op == 0x14 && len(cmd) >= 3:
		p.progReply(p.prog.PagedRead(cvArg(cmd[2])))
	case op == 0x15 && len(cmd) >= 3:
		p.progReply(p.prog.DirectRead(cvArg(cmd[2])))
	case op == 0x16 && len(cmd) >= 4:
		p.progReply(p.prog.DirectWrite(cvArg(cmd[2]), cmd[3]))
	case op == 0x17 && len(cmd) >= 4:
		p.progReply(p.prog.PagedWrite(cvArg(cmd[2]), cmd[3]))
	case op >= 0x18 && op <= 0x1B && len(cmd) >= 3:
		p.progReply(p.prog.DirectRead(wideCV(op, cmd[2])))
	case op >= 0x1C && op <= 0x1F && len(cmd) >= 4:
		p.progReply(p.prog.DirectWrite(wideCV(op, cmd[2]), cmd[3]))
	case op == 0x21:
		p.send(replyVersion)
	case op == 0x24:
		p.sendStatus()
	case op == 0x80:
		p.send(replyAck)
		p.modes.SetMode(tapas.RunOff)
	case op == 0x81:
		p.send(replyAck)
		p.modes.SetMode(tapas.RunOkay)
	default:
		return false
	}
	return true
}

// wideCV decodes the CV of the 0x18..0x1F commands, 0 is CV1024
func wideCV(op, lo byte) uint16 {
	cv := uint16(op&0x03)<<8 | uint16(lo)
	if cv == 0 {
		return 1024
	}
	return cv
}

// progReply acknowledges a programming request. A request that switched
// the station to the programming track is also announced by the broadcast.
func (p *Parser) progReply(r programmer.Reply) {
	switch r {
	case programmer.Accepted:
		if p.modes.Mode().IsProg() {
			p.send(replyAck)
		}
	case programmer.Busy:
		p.send(replyBusy)
	default:
		p.send(replyUnknown)
	}
}

func (p *Parser) sendProgResult() {
	if p.prog.Busy() {
		p.send([]byte{0x61, 0x1F})
		return
	}
	out := p.prog.Result()
	switch out.Code {
	case programmer.OK:
		switch out.Qualifier {
		case programmer.QualifierRegister:
			p.send([]byte{0x63, 0x10, byte(out.CV), out.Data})
		case programmer.QualifierDirect:
			p.send([]byte{0x63, 0x14 | byte(out.CV>>8)&0x03, byte(out.CV), out.Data})
		default:
			p.send([]byte{0x61, 0x11})
		}
	case programmer.Short:
		p.send([]byte{0x61, 0x12})
	default:
		p.send([]byte{0x61, 0x13})
	}
}

func (p *Parser) sendStatus() {
	var s byte
	switch mode := p.modes.Mode(); {
	case mode == tapas.RunOff:
		s |= 0x01
	case mode == tapas.RunStop:
		s |= 0x02
	case mode.IsProg():
		s |= 0x08
	}
	p.send([]byte{0x62, 0x22, s})
}

// turnoutNibble reports two turnouts as 01 for output 0 and 10 for output 1
func (p *Parser) turnoutNibble(first uint16) byte {
	var z byte
	for n := uint16(0); n < 2; n++ {
		coil, ok := p.org.Turnout(first + n)
		if !ok {
			continue
		}
		if p.cfg.InvertAccessory {
			coil ^= 1
		}
		z |= (1 + coil) << (2 * n)
	}
	return z
}

// sendFeedback answers for one nibble of a decoder address. The low 64
// addresses are turnout decoders, the rest feedback modules without data.
func (p *Parser) sendFeedback(group byte, upper bool) {
	nibble := byte(0)
	if upper {
		nibble = 0x10
	}
	if group < 0x40 {
		first := uint16(group)<<2 | uint16(nibble>>3)
		p.send([]byte{0x42, group, nibble | p.turnoutNibble(first)})
		return
	}
	p.send([]byte{0x42, group, 0x40 | nibble})
}

func (p *Parser) feedbackRequest(cmd []byte) bool {
	if cmd[0] != 0x42 {
		return false
	}
	p.sendFeedback(cmd[1], cmd[2]&0x01 != 0)
	return true
}

func (p *Parser) accessory(cmd []byte) bool {
	if cmd[0] != 0x52 {
		return false
	}
	addr := uint16(cmd[1])<<2 | uint16(cmd[2]>>1)&0x03
	activate := cmd[2]&0x08 != 0
	coil := cmd[2] & 0x01
	if p.cfg.InvertAccessory {
		coil ^= 1
	}
	p.org.Accessory(addr, coil, activate)
	p.send(replyAck)
	if cmd[1] < 0x40 {
		p.sendFeedback(cmd[1], cmd[2]&0x04 != 0)
	}
	return true
}

func (p *Parser) emergencyStop(cmd []byte) bool {
	var addr uint16
	switch {
	case cmd[0] == 0x91 && len(cmd) >= 2:
		addr = uint16(cmd[1])
	case cmd[0] == 0x92 && len(cmd) >= 3:
		addr = locoAddr(cmd[1], cmd[2])
	default:
		return false
	}
	p.send(replyAck)
	p.org.EmergencyStop(addr)
	return true
}

func (p *Parser) interfaceCommand(cmd []byte) bool {
	if cmd[0] == 0xF0 {
		p.send(replyLIVer)
		return true
	}
	if len(cmd) < 3 {
		return false
	}
	switch cmd[1] {
	case 0x01:
		addr := cmd[2]
		if addr < 1 || addr > 31 {
			addr = 1
		}
		p.send([]byte{cmd[0], 0x01, addr})
		return true
	case 0x02:
		code := cmd[2]
		baud, ok := baudRates[code]
		if !ok {
			code, baud = 1, baudRates[1]
		}
		p.send([]byte{cmd[0], 0x02, code})
		if setter, ok := p.transport.(tapas.BaudRateSetter); ok {
			if err := setter.SetBaudRate(baud); err != nil {
				p.log.WithError(err).Errorf("switching host link to %d baud", baud)
			} else {
				p.log.Infof("host link now at %d baud", baud)
			}
		}
		return true
	}
	return false
}

// lenzToRail converts the host's speed byte to a rail step of format f.
// The 28 step byte carries the least significant step bit in bit 4.
func lenzToRail(b byte, f tapas.Format) uint8 {
	switch f {
	case tapas.DCC14:
		return b&0x80 | b&0x0F
	case tapas.DCC27, tapas.DCC28:
		if b&0x0F <= 1 {
			return b & 0x81
		}
		step := (b&0x0F)<<1 | (b&0x10)>>4
		return (step - 2) | b&0x80
	default:
		return b
	}
}

// railToLenz is the inverse of lenzToRail
func railToLenz(speed uint8, f tapas.Format) byte {
	dir := speed & frame.SpeedDirection
	mag := speed & frame.SpeedMask
	switch f {
	case tapas.DCC27, tapas.DCC28:
		if mag <= frame.SpeedEmergency {
			return speed
		}
		data := (mag & 0x1F) + 2
		return (data>>1 | (data&0x01)<<4) | dir
	default:
		return speed
	}
}

func formatID(f tapas.Format) byte {
	switch f {
	case tapas.DCC27:
		return 0x01
	case tapas.DCC28:
		return 0x02
	case tapas.DCC128:
		return 0x04
	default:
		return 0x00
	}
}

func (p *Parser) busyOr(fn func()) {
	if !p.org.Ready() {
		p.send(replyBusy)
		return
	}
	fn()
	p.send(replyAck)
}

func (p *Parser) locoCommand(cmd []byte) bool {
	if len(cmd) < 4 {
		return false
	}
	addr := locoAddr(cmd[2], cmd[3])
	switch cmd[1] & 0xF0 {
	case 0x00:
		return p.locoQuery(cmd[1]&0x0F, addr)

	case 0x10:
		if len(cmd) < 5 {
			return false
		}
		f := tapas.Format(cmd[1] & 0x03)
		speed := frame.SpeedFromRail(lenzToRail(cmd[4], f), f)
		p.busyOr(func() { p.org.LocoSpeedFormat(addr, speed, f) })
		return true

	case 0x20:
		if len(cmd) < 5 {
			return false
		}
		b := cmd[4]
		switch cmd[1] & 0x0F {
		case 0x00:
			p.busyOr(func() {
				_, _ = p.org.LocoFunction(addr, 0, (b>>4)&0x01)
				_, _ = p.org.LocoFunction(addr, 1, b&0x0F)
			})
		case 0x01, 0x02:
			group := int(cmd[1]&0x0F) + 1
			p.busyOr(func() { _, _ = p.org.LocoFunction(addr, group, b&0x0F) })
		case 0x03:
			p.busyOr(func() { _, _ = p.org.LocoFunction(addr, 4, b) })
		case 0x08:
			p.busyOr(func() { _, _ = p.org.LocoFunction(addr, 5, b) })
		case 0x04, 0x05, 0x06, 0x07, 0x0C:
			// momentary function flags are not kept
			p.send(replyAck)
		default:
			return false
		}
		return true

	case 0x30:
		return p.pom(cmd, addr)

	case 0x40:
		if cmd[1] == 0x44 {
			p.org.Delete(addr)
			p.send(replyAck)
			return true
		}
	}
	return false
}

func (p *Parser) locoQuery(op byte, addr uint16) bool {
	switch op {
	case 0x00:
		p.sendLocoInfo(addr)
	case 0x05, 0x06:
		p.sendLocoAddr(p.org.AddrInquiry(addr, op == 0x05))
	case 0x07:
		p.send([]byte{0xE3, 0x50, 0x00, 0x00})
	case 0x08:
		p.send([]byte{0xE3, 0x51, 0x00, 0x00})
	case 0x09:
		l, _ := p.org.Loco(addr)
		p.send([]byte{0xE3, 0x52, l.F13F20, l.F21F28})
	default:
		return false
	}
	return true
}

func (p *Parser) sendLocoInfo(addr uint16) {
	l, ok := p.org.Loco(addr)
	if !ok {
		p.send([]byte{0xE4, formatID(p.org.FormatOf(addr)), 0x00, 0x00, 0x00})
		return
	}
	var light byte
	if l.Light {
		light = 0x10
	}
	speed := frame.SpeedToRail(l.Speed, l.Format)
	p.send([]byte{
		0xE4,
		formatID(l.Format),
		railToLenz(speed, l.Format),
		light | l.F1F4&0x0F,
		l.F9F12<<4 | l.F5F8&0x0F,
	})
}

func (p *Parser) sendLocoAddr(addr uint16) {
	id := byte(0x30)
	if addr == 0 {
		id |= 0x04
	}
	var hi byte
	if addr > shortAddrLimit {
		hi = byte(addr>>8) | 0xC0
	}
	p.send([]byte{0xE3, id, hi, byte(addr)})
}

func (p *Parser) pom(cmd []byte, addr uint16) bool {
	if cmd[1] != 0x30 || len(cmd) < 6 {
		return false
	}
	cv := uint16(cmd[4]&0x03)<<8 | uint16(cmd[5])
	cv++
	var data byte
	if len(cmd) >= 7 {
		data = cmd[6]
	}
	switch cmd[4] & 0xFC {
	case 0xEC:
		p.org.PomLoco(addr, cv, data)
	case 0xE4:
		p.org.PomLocoRead(addr, cv)
	case 0xF0:
		p.org.PomAccessory(addr, cv, data)
	case 0xF4:
		p.org.PomAccessoryRead(addr, cv)
	case 0xF8:
		p.org.PomExtAccessory(addr, cv, data)
	case 0xFC:
		p.org.PomExtAccessoryRead(addr, cv)
	default:
		return false
	}
	p.send(replyAck)
	return true
}
