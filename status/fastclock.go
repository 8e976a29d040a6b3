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

package status

import (
	"slices"
	"time"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/frame"
)

// clockStep is the fast clock tick; every tick adds the ratio to the
// accumulator and a model minute passes at clockMinute
const (
	clockStep   = 5 * time.Millisecond
	clockMinute = 12000
)

type fastClock struct {
	time  frame.Clock
	value int
	tick  time.Time
}

// advance adds one tick and reports whether a model minute passed
func (f *fastClock) advance() bool {
	if f.time.Ratio == 0 {
		return false
	}
	f.value += int(f.time.Ratio)
	if f.value < clockMinute {
		return false
	}
	f.value = 0
	f.time.Minute++
	if f.time.Minute >= 60 {
		f.time.Minute = 0
		f.time.Hour++
		if f.time.Hour >= 24 {
			f.time.Hour = 0
			f.time.DayOfWeek = (f.time.DayOfWeek + 1) % 7
		}
	}
	return true
}

// maxClockLag bounds the ticks replayed after a stalled loop
const maxClockLag = time.Second

func (s *Status) stepClock(now time.Time) {
	if now.Sub(s.fast.tick) > maxClockLag {
		s.fast.tick = now.Add(-maxClockLag)
	}
	for now.Sub(s.fast.tick) >= clockStep {
		s.fast.tick = s.fast.tick.Add(clockStep)
		if !s.fast.advance() {
			continue
		}
		c := s.fast.time
		if s.Mode() == tapas.RunOkay {
			s.org.FastClock(c)
		}
		s.mu.RLock()
		subs := slices.Clone(s.onClock)
		s.mu.RUnlock()
		for _, fn := range subs {
			fn(c)
		}
	}
}

// Clock returns the model time
func (s *Status) Clock() frame.Clock {
	return s.fast.time
}

// SetClock sets the model time and ratio. The minute accumulator restarts.
func (s *Status) SetClock(c frame.Clock) {
	c.Minute %= 60
	c.Hour %= 24
	c.DayOfWeek %= 7
	s.fast.time = c
	s.fast.value = 0
	if s.Mode() == tapas.RunOkay {
		s.org.FastClock(c)
	}
}
