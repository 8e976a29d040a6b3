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
	"sort"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/frame"
)

// maxRefreshAge bounds the staleness counter of a refresh table entry
const maxRefreshAge = 200

// Loco is one refresh table entry
type Loco struct {
	Address uint16       `json:"address"`
	Format  tapas.Format `json:"format"`
	// Speed is the canonical 128 step value with the direction in bit 7
	Speed  uint8 `json:"speed"`
	Active bool  `json:"active"`
	Light  bool  `json:"light"`
	F1F4   uint8 `json:"f1f4"`
	F5F8   uint8 `json:"f5f8"`
	F9F12  uint8 `json:"f9f12"`
	F13F20 uint8 `json:"f13f20"`
	F21F28 uint8 `json:"f21f28"`
	// Refresh grows each time the scheduler completes its level cycle
	// without a new command for this loco
	Refresh uint8 `json:"refresh"`
}

// Forward reports the direction bit
func (l *Loco) Forward() bool {
	return l.Speed&frame.SpeedDirection != 0
}

// Group returns the function bits for group 1..5 as sent on the track.
// Group 1 carries the headlight in bit 4.
func (l *Loco) Group(group int) uint8 {
	switch group {
	case 1:
		g := l.F1F4 & 0x0F
		if l.Light {
			g |= 0x10
		}
		return g
	case 2:
		return l.F5F8 & 0x0F
	case 3:
		return l.F9F12 & 0x0F
	case 4:
		return l.F13F20
	case 5:
		return l.F21F28
	default:
		return 0
	}
}

func (o *Organizer) resetEntry(i int, addr uint16) {
	o.locos[i] = Loco{
		Address: addr,
		Format:  o.db.Format(addr),
	}
}

// entry finds or allocates the refresh table slot for addr. An inactive
// match and a freshly allocated slot both start from stop with all
// functions off. When the table is full the stalest entry is evicted.
func (o *Organizer) entry(addr uint16) (int, Result) {
	for i := range o.locos {
		if o.locos[i].Address == addr {
			if o.locos[i].Active {
				return i, 0
			}
			o.resetEntry(i, addr)
			return i, NewEntry
		}
	}

	for i := range o.locos {
		if o.locos[i].Address == 0 {
			o.resetEntry(i, addr)
			return i, NewEntry
		}
	}

	oldest := 0
	var age uint8
	for i := range o.locos {
		if o.locos[i].Refresh > age {
			oldest = i
			age = o.locos[i].Refresh
		}
	}
	o.log.Debugf("refresh table full, evicting loco %d", o.locos[oldest].Address)
	o.resetEntry(oldest, addr)
	return oldest, NewEntry
}

func slowDown(old, speed uint8) Result {
	var r Result
	if (old^speed)&frame.SpeedDirection != 0 {
		r |= SlowDown
	}
	if speed&frame.SpeedMask < old&frame.SpeedMask {
		r |= SlowDown
	}
	return r
}

func (o *Organizer) enterSpeed(addr uint16, speed uint8) (int, Result) {
	i, r := o.entry(addr)
	l := &o.locos[i]
	l.Active = true
	if r.Has(NewEntry) {
		l.Speed = speed
		return i, r
	}
	l.Refresh = 0
	r |= slowDown(l.Speed, speed)
	l.Speed = speed
	return i, r
}

func (o *Organizer) enterSpeedFormat(addr uint16, speed uint8, f tapas.Format) (int, Result) {
	i, r := o.entry(addr)
	l := &o.locos[i]
	l.Active = true
	if r.Has(NewEntry) || l.Format != f {
		l.Format = f
		if err := o.db.SetFormat(addr, f); err != nil {
			o.log.WithError(err).Warnf("storing format of loco %d", addr)
		}
	}
	if r.Has(NewEntry) {
		l.Speed = speed
		return i, r
	}
	l.Refresh = 0
	r |= slowDown(l.Speed, speed)
	l.Speed = speed
	return i, r
}

// enterFunction stores one function group. Group 0 is the headlight alone.
func (o *Organizer) enterFunction(addr uint16, group int, funcs uint8) (int, Result) {
	i, r := o.entry(addr)
	l := &o.locos[i]
	l.Active = true
	switch group {
	case 0:
		l.Light = funcs&0x01 != 0
	case 1:
		l.F1F4 = funcs & 0x0F
	case 2:
		l.F5F8 = funcs & 0x0F
	case 3:
		l.F9F12 = funcs & 0x0F
	case 4:
		l.F13F20 = funcs
	case 5:
		l.F21F28 = funcs
	}
	return i, r
}

func (o *Organizer) speedMessage(i int) frame.Message {
	l := &o.locos[i]
	rail := frame.SpeedToRail(l.Speed, l.Format)
	return o.build.LocoSpeed(l.Address, rail, l.Format, l.Light)
}

func (o *Organizer) functionMessage(i, group int) frame.Message {
	l := &o.locos[i]
	return o.build.FunctionGroup(l.Address, group, l.Group(group))
}

// Scan returns the refresh table index of addr
func (o *Organizer) Scan(addr uint16) (int, bool) {
	for i := range o.locos {
		if o.locos[i].Address == addr {
			return i, true
		}
	}
	return 0, false
}

// Loco returns a copy of the refresh table entry for addr
func (o *Organizer) Loco(addr uint16) (Loco, bool) {
	i, ok := o.Scan(addr)
	if !ok {
		return Loco{}, false
	}
	return o.locos[i], true
}

// Locos returns the occupied refresh table entries sorted by address
func (o *Organizer) Locos() []Loco {
	out := make([]Loco, 0, len(o.locos))
	for i := range o.locos {
		if o.locos[i].Address != 0 {
			out = append(out, o.locos[i])
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Address < out[b].Address })
	return out
}

// FormatOf returns the format of addr from the refresh table, else from the database
func (o *Organizer) FormatOf(addr uint16) tapas.Format {
	if i, ok := o.Scan(addr); ok {
		return o.locos[i].Format
	}
	return o.db.Format(addr)
}

// Delete removes addr from the refresh table
func (o *Organizer) Delete(addr uint16) {
	for i := range o.locos {
		if o.locos[i].Address == addr {
			o.locos[i].Address = 0
			o.locos[i].Active = false
		}
	}
}

// AddrInquiry walks the refresh table in address order. Forward returns the
// smallest address above addr, backward the largest below it. It returns 0
// when there is none.
func (o *Organizer) AddrInquiry(addr uint16, forward bool) uint16 {
	var found uint16
	for i := range o.locos {
		a := o.locos[i].Address
		if a == 0 {
			continue
		}
		if forward {
			if a > addr && (found == 0 || a < found) {
				found = a
			}
		} else if a < addr && a > found {
			found = a
		}
	}
	return found
}
