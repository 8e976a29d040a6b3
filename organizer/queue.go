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
	"github.com/stefaandesmet2003/tapas/internal/frame"
	"github.com/stefaandesmet2003/tapas/internal/ring"
)

// replaceQueued overwrites a queued command that m supersedes
func replaceQueued(q *ring.Ring[frame.Message], m frame.Message) bool {
	found := false
	q.Each(func(queued *frame.Message) bool {
		if supersedes(queued, &m) {
			queued.Data = m.Data
			found = true
			return false
		}
		return true
	})
	return found
}

func (o *Organizer) put(q *ring.Ring[frame.Message], name string, m frame.Message, dedup bool) Result {
	if dedup && replaceQueued(q, m) {
		return 0
	}
	ok, full := q.Put(m)
	if !ok {
		o.stats.Dropped++
		o.log.Warnf("%s queue full, dropped %s", name, m)
		return Full
	}
	if full {
		return Full
	}
	return 0
}

func (o *Organizer) putHigh(m frame.Message) Result {
	return o.put(o.hp, "high priority", m, true)
}

// putLow routes a command to the low priority queue, or to the service mode
// queue while programming. In a programming mode the command is refused
// while the programmer owns the queue.
func (o *Organizer) putLow(m frame.Message) Result {
	if o.mode.Mode().IsProg() {
		if o.progBusy() {
			return 0
		}
		return o.put(o.prog, "programming", m, false)
	}
	return o.put(o.lp, "low priority", m, true)
}

// PutProg appends a service mode packet for the programmer
func (o *Organizer) PutProg(m frame.Message) Result {
	return o.put(o.prog, "programming", m, false)
}

// ProgEmpty reports whether every service mode packet was handed to the
// encoder. While packets remain it also runs one scheduling step.
func (o *Organizer) ProgEmpty() bool {
	if o.prog.Empty() {
		return true
	}
	o.Run()
	return false
}

// FlushProg drops the service mode packets not yet handed to the encoder
// and returns how many there were.
func (o *Organizer) FlushProg() int {
	n := o.prog.Len()
	o.prog.Reset()
	return n
}

// QueueLengths returns the number of pending entries in the high priority,
// low priority and programming queues
func (o *Organizer) QueueLengths() (hp, lp, prog int) {
	return o.hp.Len(), o.lp.Len(), o.prog.Len()
}
