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
	"fmt"

	"github.com/stefaandesmet2003/tapas/internal/frame"
	"github.com/stefaandesmet2003/tapas/programmer"
)

// FakeProgrammer records the programming requests it receives
type FakeProgrammer struct {
	Outcome programmer.Outcome
	Calls   []string
	Reply   programmer.Reply
	Working bool
}

func (f *FakeProgrammer) record(format string, args ...any) programmer.Reply {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
	return f.Reply
}

// RegisterRead implements Programmer
func (f *FakeProgrammer) RegisterRead(reg uint8) programmer.Reply {
	return f.record("RR %d", reg)
}

// RegisterWrite implements Programmer
func (f *FakeProgrammer) RegisterWrite(reg, data uint8) programmer.Reply {
	return f.record("WR %d %d", reg, data)
}

// PagedRead implements Programmer
func (f *FakeProgrammer) PagedRead(cv uint16) programmer.Reply {
	return f.record("RP %d", cv)
}

// PagedWrite implements Programmer
func (f *FakeProgrammer) PagedWrite(cv uint16, data uint8) programmer.Reply {
	return f.record("WP %d %d", cv, data)
}

// DirectRead implements Programmer
func (f *FakeProgrammer) DirectRead(cv uint16) programmer.Reply {
	return f.record("RD %d", cv)
}

// DirectWrite implements Programmer
func (f *FakeProgrammer) DirectWrite(cv uint16, data uint8) programmer.Reply {
	return f.record("WD %d %d", cv, data)
}

// Busy implements Programmer
func (f *FakeProgrammer) Busy() bool {
	return f.Working
}

// Result implements Programmer
func (f *FakeProgrammer) Result() programmer.Outcome {
	return f.Outcome
}

// FakeFastClock stores the model time
type FakeFastClock struct {
	Time frame.Clock
	Sets int
}

// Clock implements FastClock
func (f *FakeFastClock) Clock() frame.Clock {
	return f.Time
}

// SetClock implements FastClock
func (f *FakeFastClock) SetClock(c frame.Clock) {
	f.Time = c
	f.Sets++
}
