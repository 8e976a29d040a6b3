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

package tapas

import "fmt"

// RunMode is the station-wide operating state published by the status component
type RunMode int

const (
	// RunOkay is normal operation on the main track
	RunOkay RunMode = iota
	// RunStop means all locomotives were braked by a broadcast stop
	RunStop
	// RunOff means track power is off
	RunOff
	// RunShort means the main track was switched off after a short
	RunShort
	// RunPause keeps the track powered with locomotives held
	RunPause
	// ProgOkay means the programming track is active
	ProgOkay
	// ProgShort means the programming track was switched off after a short
	ProgShort
	// ProgOff means the programming track is off
	ProgOff
	// ProgError means the last programming sequence failed
	ProgError
)

var runModeNames = [...]string{
	RunOkay:   "RUN_OKAY",
	RunStop:   "RUN_STOP",
	RunOff:    "RUN_OFF",
	RunShort:  "RUN_SHORT",
	RunPause:  "RUN_PAUSE",
	ProgOkay:  "PROG_OKAY",
	ProgShort: "PROG_SHORT",
	ProgOff:   "PROG_OFF",
	ProgError: "PROG_ERROR",
}

// String returns the conventional upper-case name of the mode
func (m RunMode) String() string {
	if m >= 0 && int(m) < len(runModeNames) {
		return runModeNames[m]
	}
	return fmt.Sprintf("RunMode(%d)", int(m))
}

// IsProg reports whether the mode belongs to the programming track group
func (m RunMode) IsProg() bool {
	return m >= ProgOkay && m <= ProgError
}

// ModeController is implemented by the component that owns the run mode.
// The organizer reads it, the programmer also switches it.
type ModeController interface {
	Mode() RunMode
	SetMode(RunMode)
}

// Format is the speed step format of a locomotive decoder
type Format uint8

const (
	// DCC14 is the 14 speed step format
	DCC14 Format = iota
	// DCC27 is handled as DCC28
	DCC27
	// DCC28 is the 28 speed step format
	DCC28
	// DCC128 is the 128 speed step format
	DCC128
)

// String returns the format name
func (f Format) String() string {
	switch f {
	case DCC14:
		return "DCC14"
	case DCC27:
		return "DCC27"
	case DCC28:
		return "DCC28"
	case DCC128:
		return "DCC128"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// Steps returns the number of speed steps presented to a user
func (f Format) Steps() int {
	switch f {
	case DCC14:
		return 14
	case DCC27:
		return 27
	case DCC28:
		return 28
	default:
		return 126
	}
}

// ParseFormat converts a step count such as 28 or 128 into a Format
func ParseFormat(steps int) (Format, error) {
	switch steps {
	case 14:
		return DCC14, nil
	case 27:
		return DCC27, nil
	case 28:
		return DCC28, nil
	case 126, 128:
		return DCC128, nil
	default:
		return 0, fmt.Errorf("unsupported speed step count %d", steps)
	}
}
