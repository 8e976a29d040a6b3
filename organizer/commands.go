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

import (
	"fmt"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/frame"
)

// Callers should check Ready before issuing a command. A command that finds
// its queue without a free slot is dropped and reported with Full.

func (o *Organizer) queueSpeed(i int, r Result) Result {
	m := o.speedMessage(i)
	if r.Has(SlowDown) {
		r |= o.putHigh(m)
	}
	r |= o.putLow(m)
	o.clearRepeat(&m)
	return r
}

// LocoSpeed sets the speed of addr. speed is the canonical 128 step value
// with the direction in bit 7. Braking and direction changes are also put
// in the high priority queue.
func (o *Organizer) LocoSpeed(addr uint16, speed uint8) Result {
	i, r := o.enterSpeed(addr, speed)
	return o.queueSpeed(i, r)
}

// LocoSpeedFormat is LocoSpeed with an explicit decoder format, which is
// stored in the format database when it changed
func (o *Organizer) LocoSpeedFormat(addr uint16, speed uint8, f tapas.Format) Result {
	i, r := o.enterSpeedFormat(addr, speed, f)
	return o.queueSpeed(i, r)
}

// LocoFunction sets a function group of addr. Group 0 is the headlight,
// 1 is F1..F4, 2 F5..F8, 3 F9..F12, 4 F13..F20 and 5 F21..F28.
func (o *Organizer) LocoFunction(addr uint16, group int, funcs uint8) (Result, error) {
	if group < 0 || group > 5 {
		return 0, fmt.Errorf("invalid function group %d", group)
	}
	i, r := o.enterFunction(addr, group, funcs)
	wire := group
	if group == 0 {
		wire = 1
	}
	return r | o.putLow(o.functionMessage(i, wire)), nil
}

// Accessory switches a turnout output. Activated outputs are remembered
// for feedback replies.
func (o *Organizer) Accessory(addr uint16, coil uint8, activate bool) Result {
	var act uint8
	if activate {
		act = 1
		o.turnouts[addr] = coil & 1
	}
	return o.putLow(o.build.BasicAccessory(addr, coil&1, act))
}

// ExtendedAccessory sends an aspect to an extended accessory decoder
func (o *Organizer) ExtendedAccessory(addr uint16, aspect uint8) Result {
	return o.putLow(o.build.ExtendedAccessory(addr, aspect))
}

// Turnout returns the last activated coil of addr
func (o *Organizer) Turnout(addr uint16) (uint8, bool) {
	c, ok := o.turnouts[addr]
	return c, ok
}

// TurnoutGroup returns the remembered coils of the four turnouts of one
// decoder, bit n set when output 1 of turnout group*4+n was last activated
func (o *Organizer) TurnoutGroup(group uint16) uint8 {
	var bits uint8
	for n := uint16(0); n < 4; n++ {
		if o.turnouts[group*4+n] == 1 {
			bits |= 1 << n
		}
	}
	return bits
}

// PomLoco writes a CV of a locomotive decoder on the main track
func (o *Organizer) PomLoco(addr, cv uint16, data uint8) Result {
	return o.putLow(o.build.PomLoco(addr, cv, data))
}

// PomLocoRead asks a locomotive decoder to report a CV on the main track
func (o *Organizer) PomLocoRead(addr, cv uint16) Result {
	return o.putLow(o.build.PomLocoRead(addr, cv))
}

// PomAccessory writes a CV of a basic accessory decoder
func (o *Organizer) PomAccessory(addr, cv uint16, data uint8) Result {
	return o.putLow(o.build.PomAccessory(addr, cv, data))
}

// PomAccessoryRead asks a basic accessory decoder to report a CV
func (o *Organizer) PomAccessoryRead(addr, cv uint16) Result {
	return o.putLow(o.build.PomAccessoryRead(addr, cv))
}

// PomExtAccessory writes a CV of an extended accessory decoder
func (o *Organizer) PomExtAccessory(addr, cv uint16, data uint8) Result {
	return o.putLow(o.build.PomExtAccessory(addr, cv, data))
}

// PomExtAccessoryRead asks an extended accessory decoder to report a CV
func (o *Organizer) PomExtAccessoryRead(addr, cv uint16) Result {
	return o.putLow(o.build.PomExtAccessoryRead(addr, cv))
}

// FastClock broadcasts the model time
func (o *Organizer) FastClock(c frame.Clock) Result {
	return o.putLow(o.build.FastClock(c))
}

// EmergencyStop stops one locomotive at once, keeping its direction
func (o *Organizer) EmergencyStop(addr uint16) Result {
	dir := uint8(0)
	if l, ok := o.Loco(addr); ok {
		dir = l.Speed & frame.SpeedDirection
	}
	return o.LocoSpeed(addr, dir|frame.SpeedEmergency)
}
