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
	"sync"

	"github.com/stefaandesmet2003/tapas"
	"github.com/stefaandesmet2003/tapas/internal/frame"
	"github.com/stefaandesmet2003/tapas/organizer"
)

// FakePower records the track output levels
type FakePower struct {
	Main     bool
	Prog     bool
	Switches int
	mu       sync.Mutex
}

// SetMain implements Power
func (f *FakePower) SetMain(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Main = on
	f.Switches++
}

// SetProg implements Power
func (f *FakePower) SetProg(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prog = on
}

// State returns both output levels
func (f *FakePower) State() (main, prog bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Main, f.Prog
}

// FakeInput is a settable input line
type FakeInput struct {
	On bool
}

// Active implements Input
func (f *FakeInput) Active() bool {
	return f.On
}

// RecordingOrganizer records what status asked of the organizer
type RecordingOrganizer struct {
	Changes [][2]tapas.RunMode
	Clocks  []frame.Clock
}

// OnModeChange implements Organizer
func (r *RecordingOrganizer) OnModeChange(old, mode tapas.RunMode) {
	r.Changes = append(r.Changes, [2]tapas.RunMode{old, mode})
}

// FastClock implements Organizer
func (r *RecordingOrganizer) FastClock(c frame.Clock) organizer.Result {
	r.Clocks = append(r.Clocks, c)
	return 0
}

// CountingResetter counts Reset calls
type CountingResetter struct {
	Resets int
}

// Reset implements Resetter
func (c *CountingResetter) Reset() {
	c.Resets++
}
