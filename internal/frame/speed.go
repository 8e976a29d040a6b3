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

package frame

import "github.com/stefaandesmet2003/tapas"

// Canonical speed: bit 7 direction, bits 0..6 magnitude with 0 = stop,
// 1 = emergency stop and 2..127 running.
const (
	SpeedStop      = 0x00
	SpeedEmergency = 0x01
	SpeedDirection = 0x80
	SpeedMask      = 0x7F

	rail14Max = 15
	rail28Max = 29
)

// SpeedToRail converts a canonical 128 step speed to the step count of the format.
// Stop and emergency stop stay 0 and 1, running steps start at 2.
func SpeedToRail(speed uint8, f tapas.Format) uint8 {
	mag := speed & SpeedMask
	dir := speed & SpeedDirection
	if mag <= SpeedEmergency {
		return speed
	}
	switch f {
	case tapas.DCC14:
		return ((mag-2)/9 + 2) | dir
	case tapas.DCC27, tapas.DCC28:
		return uint8((uint16(mag)-2)*2/9+2) | dir
	default:
		return speed
	}
}

// SpeedFromRail converts a rail speed of the given format back to canonical 128 steps
func SpeedFromRail(speed uint8, f tapas.Format) uint8 {
	mag := speed & SpeedMask
	dir := speed & SpeedDirection
	if mag <= SpeedEmergency {
		return speed
	}
	switch f {
	case tapas.DCC14:
		mag = min(mag, rail14Max)
		return uint8(uint16(mag-2)*9+2) | dir
	case tapas.DCC27, tapas.DCC28:
		mag = min(mag, rail28Max)
		return uint8((uint16(mag-2)*9+1)/2+2) | dir
	default:
		return speed
	}
}
