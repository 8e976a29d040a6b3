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
	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/frame"
)

const (
	levelsExtended = 10
	levelsBasic    = 6
)

// refreshCursor walks the refresh table. Even levels send speed, odd levels
// send one function group each, and only when that group has a bit set.
type refreshCursor struct {
	index int
	level int
	max   int
	size  int
}

func (c *refreshCursor) init(size int, extended bool) {
	c.size = size
	c.max = levelsBasic
	if extended {
		c.max = levelsExtended
	}
	c.index = 0
	c.level = 0
}

// Level returns the current refresh level
func (o *Organizer) Level() int {
	return o.refresh.level
}

// age bumps the staleness of every entry after a complete level cycle
func (o *Organizer) age() {
	for i := range o.locos {
		if o.locos[i].Refresh < maxRefreshAge {
			o.locos[i].Refresh++
		}
	}
}

// candidate returns the refresh message for entry i at the current level
func (o *Organizer) candidate(i int) (frame.Message, bool) {
	l := &o.locos[i]
	if !l.Active || l.Address == 0 {
		return frame.Message{}, false
	}
	c := &o.refresh
	if c.level&1 == 0 {
		return o.speedMessage(i), true
	}

	group := c.level>>1 + 1
	if l.Group(group) == 0 {
		return frame.Message{}, false
	}
	return o.functionMessage(i, group), true
}

// nextItem advances the cursor to the next refresh candidate. A table without
// any candidate for two passes yields a keep-alive speed packet to address 3 on
// the low levels, idle otherwise.
func (o *Organizer) nextItem() (frame.Message, bool) {
	c := &o.refresh
	wrap := 0
	for {
		c.index++
		if c.index >= c.size {
			if wrap > 1 {
				c.index = c.size
				if c.level <= 2 {
					return o.build.LocoSpeed(3, 0, tapas.DCC28, false), false
				}
				return frame.Idle, true
			}
			c.index = 0
			wrap++
			c.level++
			if c.level == c.max {
				c.level = 0
				o.age()
			}
		}
		if m, ok := o.candidate(c.index); ok {
			return m, false
		}
	}
}

// nextRefresh returns the next refresh message, or idle. Finding the same
// entry twice in a row sends idle in between and steps back one level.
func (o *Organizer) nextRefresh() (frame.Message, bool) {
	c := &o.refresh
	old := c.index
	m, idle := o.nextItem()
	if old == c.index {
		if c.level > 0 {
			c.level--
		}
		c.index = c.size + 1
		return frame.Idle, true
	}
	return m, idle
}
